// internal/driver/ecr/receipt.go
package ecr

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON exposes the packet both as hex and as legacy text
func (r ReturnValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      int    `json:"id"`
		Command int    `json:"command"`
		Hex     string `json:"hex"`
		Value   string `json:"value"`
	}{
		ID:      r.ID,
		Command: int(r.Packet.Command()),
		Hex:     r.Packet.Hex(),
		Value:   r.Packet.Text(),
	})
}

// sequenceBuilder numbers packets in the order they are added
type sequenceBuilder struct {
	values []ReturnValue
}

func (b *sequenceBuilder) add(packets ...Packet) {
	for _, packet := range packets {
		b.values = append(b.values, ReturnValue{
			ID:     len(b.values) + 1,
			Packet: packet,
		})
	}
}

// PrintReceipt assembles the full packet sequence of one receipt:
// operator, receipt header, program lines, article registration, sales,
// payments with their terminator, close.
func (e *Encoder) PrintReceipt(params SaleParameters) ([]ReturnValue, error) {
	var b sequenceBuilder

	operator, err := e.SetOperatorName(params.OperatorName)
	if err != nil {
		return nil, fmt.Errorf("set operator name: %w", err)
	}
	b.add(operator)

	initialize, err := e.InitializeReceipt()
	if err != nil {
		return nil, fmt.Errorf("initialize receipt: %w", err)
	}
	b.add(initialize)

	lines, err := e.ProgramLines(params.ProgramLine)
	if err != nil {
		return nil, fmt.Errorf("program lines: %w", err)
	}
	b.add(lines...)

	registered, err := e.RegisterItems(params.Items)
	if err != nil {
		return nil, err
	}
	b.add(registered...)

	sold, err := e.SellItems(params.Items)
	if err != nil {
		return nil, err
	}
	b.add(sold...)

	payments, err := e.Payments(params.Payments)
	if err != nil {
		return nil, err
	}
	b.add(payments...)

	closing, err := e.CloseReceipt()
	if err != nil {
		return nil, fmt.Errorf("close receipt: %w", err)
	}
	b.add(closing)

	return b.values, nil
}
