// Package graph computes the radial wallet-graph view the frontend renders.
// Layout runs server-side so every client draws the same picture for the
// same page of transactions.
package graph

import (
	"math"
	"math/big"

	"github.com/wallet-explorer/internal/models"
	"github.com/wallet-explorer/internal/types"
)

const (
	// Radius is the distance from the center node to each transaction node
	// in abstract layout units. The frontend scales to its viewport.
	Radius = 100.0

	// WidthMin and WidthMax clamp the log-scaled edge stroke width.
	WidthMin = 1.0
	WidthMax = 8.0

	// weiPerEth converts base units for the width scale.
	weiPerEth = 1e18
)

// Category classifies what an edge represents.
type Category string

const (
	// CategoryTransfer is a plain value transfer.
	CategoryTransfer Category = "transfer"
	// CategoryContract is a transaction carrying call data.
	CategoryContract Category = "contract"
)

// Node is one point in the radial view. The queried address sits at the
// origin; transaction nodes sit on the circle.
type Node struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	// Center marks the queried address node.
	Center bool `json:"center,omitempty"`
}

// Edge connects the center to one transaction node and carries the style
// the frontend needs: direction picks the arrowhead, category the dash
// pattern, width the stroke.
type Edge struct {
	Hash         string                     `json:"hash"`
	From         string                     `json:"from"`
	To           string                     `json:"to"`
	Counterparty string                     `json:"counterparty"`
	Direction    types.TransactionDirection `json:"direction"`
	Category     Category                   `json:"category"`
	Value        string                     `json:"value"`
	Width        float64                    `json:"width"`
	Cursor       string                     `json:"cursor"`
}

// View is the complete radial layout for one page of an address's feed.
type View struct {
	Address string `json:"address"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Build lays out one page of transactions around the queried address.
// Transaction i of n sits at angle 2*pi*i/n starting from the positive x
// axis, so the layout is deterministic for a given page.
func Build(address string, transactions []*models.Transaction) *View {
	view := &View{
		Address: address,
		Nodes:   make([]Node, 0, len(transactions)+1),
		Edges:   make([]Edge, 0, len(transactions)),
	}

	view.Nodes = append(view.Nodes, Node{
		ID:     address,
		Label:  shortAddress(address),
		Center: true,
	})

	n := len(transactions)
	for i, tx := range transactions {
		angle := 2 * math.Pi * float64(i) / float64(n)
		node := Node{
			ID:    tx.Hash,
			Label: shortHash(tx.Hash),
			X:     Radius * math.Cos(angle),
			Y:     Radius * math.Sin(angle),
		}
		view.Nodes = append(view.Nodes, node)

		direction := tx.DirectionFor(address)
		counterparty := tx.Sender
		if direction == types.DirectionOutgoing {
			counterparty = tx.Receiver
		}

		view.Edges = append(view.Edges, Edge{
			Hash:         tx.Hash,
			From:         tx.Sender,
			To:           tx.Receiver,
			Counterparty: counterparty,
			Direction:    direction,
			Category:     categoryFor(tx),
			Value:        tx.Value,
			Width:        EdgeWidth(tx.Value),
			Cursor:       models.FormatCursor(tx.TransactionIndex),
		})
	}

	return view
}

// EdgeWidth maps a base-unit value to a stroke width, log-scaled so a whale
// transfer does not flatten everything else, and clamped to
// [WidthMin, WidthMax]. Zero and unparseable values get the minimum width.
func EdgeWidth(value string) float64 {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() <= 0 {
		return WidthMin
	}

	// Values routinely exceed 2^53 but float64 range is ample for a
	// logarithm.
	f, _ := new(big.Float).SetInt(v).Float64()
	width := WidthMin + math.Log10(1+f/weiPerEth)

	if width < WidthMin {
		return WidthMin
	}
	if width > WidthMax {
		return WidthMax
	}
	return width
}

func categoryFor(tx *models.Transaction) Category {
	if tx.Input == "" || tx.Input == "0x" {
		return CategoryTransfer
	}
	return CategoryContract
}

func shortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + ".." + address[len(address)-4:]
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:8] + ".." + hash[len(hash)-4:]
}
