// Package types provides common type definitions for the wallet explorer system.
package types

// TransactionDirection represents whether a transaction is incoming or outgoing
// relative to the queried address
type TransactionDirection string

const (
	// DirectionIncoming represents an incoming transaction (address is receiver)
	DirectionIncoming TransactionDirection = "incoming"
	// DirectionOutgoing represents an outgoing transaction (address is sender)
	DirectionOutgoing TransactionDirection = "outgoing"
)

// PageDirection represents which slice of an address's feed is requested
type PageDirection string

const (
	// PageInitial requests the most recent transactions
	PageInitial PageDirection = "initial"
	// PageOlder requests transactions below the cursor
	PageOlder PageDirection = "older"
	// PageNewer requests transactions above the cursor
	PageNewer PageDirection = "newer"
)

// Valid reports whether the page direction is one of the known values.
func (d PageDirection) Valid() bool {
	switch d {
	case PageInitial, PageOlder, PageNewer:
		return true
	}
	return false
}

// Blockchain identifies which chain a record belongs to
type Blockchain string

const (
	// BlockchainEthereum represents the Ethereum mainnet
	BlockchainEthereum Blockchain = "ETH"
)

// Source identifies which provider produced a record. Records from different
// providers are never merged, preventing cross-provider duplication.
type Source string

const (
	// SourceInfura represents data fetched through an Infura-style JSON-RPC endpoint
	SourceInfura Source = "infura"
	// SourceEtherscan represents data fetched through the Etherscan API
	SourceEtherscan Source = "etherscan"
)

// ZeroAddress is the receiver recorded for contract-creation transactions.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
