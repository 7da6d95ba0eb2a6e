package chain

import "encoding/json"

// JSON-RPC method names supported by the upstream provider.
const (
	MethodBlockNumber           = "eth_blockNumber"
	MethodGetTransactionCount   = "eth_getTransactionCount"
	MethodGetBalance            = "eth_getBalance"
	MethodGetBlockByNumber      = "eth_getBlockByNumber"
	MethodGetTransactionReceipt = "eth_getTransactionReceipt"
	MethodGetTransactionByHash  = "eth_getTransactionByHash"
)

// RawTransaction represents a transaction as returned by the provider.
// All quantities are 0x-prefixed hex strings per chain RPC conventions.
type RawTransaction struct {
	Hash             string  `json:"hash"`
	From             string  `json:"from"`
	To               *string `json:"to"` // nil for contract creation
	Value            string  `json:"value"`
	Input            string  `json:"input"`
	Gas              string  `json:"gas"`
	GasPrice         string  `json:"gasPrice"`
	Nonce            string  `json:"nonce"`
	BlockHash        string  `json:"blockHash"`
	BlockNumber      string  `json:"blockNumber"`
	TransactionIndex string  `json:"transactionIndex"`
}

// RawBlock represents a block fetched with the full-transaction flag set.
type RawBlock struct {
	Number       string           `json:"number"`
	Hash         string           `json:"hash"`
	Timestamp    string           `json:"timestamp"`
	Transactions []RawTransaction `json:"transactions"`
}

// RawReceipt represents a transaction receipt.
type RawReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}
