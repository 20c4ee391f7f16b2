// internal/driver/ecr/commands.go
package ecr

import (
	"fmt"
	"strings"
)

// Command codes understood by the register firmware
const (
	CmdProgramLine       = 43  // 0x2B
	CmdInitializeReceipt = 48  // 0x30
	CmdPayment           = 53  // 0x35
	CmdCloseReceipt      = 56  // 0x38
	CmdSellItem          = 58  // 0x3A
	CmdCancelReceipt     = 60  // 0x3C
	CmdReport            = 69  // 0x45
	CmdStatus            = 74  // 0x4A
	CmdSetOperatorName   = 102 // 0x66
	CmdArticles          = 107 // 0x6B
	CmdPrintDuplicate    = 109 // 0x6D
	CmdPaymentEnd        = 110 // 0x6E
)

// Messages holds the free texts printed by the program lines
type Messages struct {
	// TotalLine gets the paid total and the change, both with two decimals
	TotalLine string `mapstructure:"total_line" json:"total_line"`
	// ThankYouLine gets the receipt number
	ThankYouLine string `mapstructure:"thank_you_line" json:"thank_you_line"`
	// PointsLine gets bonus points, total points and the receipt number
	PointsLine string `mapstructure:"points_line" json:"points_line"`
}

// DefaultMessages returns the texts the register has always printed
func DefaultMessages() Messages {
	return Messages{
		TotalLine:    "Tot. paguar: %s; Kusuri: %s",
		ThankYouLine: "7Ju Faleminderit! / Nr: %s",
		PointsLine:   "7Pikë: %s/%s; Nr: %s",
	}
}

// Options configures an Encoder
type Options struct {
	// StampSequence writes the running counter into each frame instead of FixedSequence
	StampSequence bool
	Messages      Messages
}

// Encoder turns ECR operations into framed packets. It owns the sequence
// counter of one connection and must not be shared between goroutines.
type Encoder struct {
	counter *SequenceCounter
	options Options
}

// NewEncoder creates an encoder with its own sequence counter
func NewEncoder(options Options) *Encoder {
	defaults := DefaultMessages()
	if options.Messages.TotalLine == "" {
		options.Messages.TotalLine = defaults.TotalLine
	}
	if options.Messages.ThankYouLine == "" {
		options.Messages.ThankYouLine = defaults.ThankYouLine
	}
	if options.Messages.PointsLine == "" {
		options.Messages.PointsLine = defaults.PointsLine
	}

	return &Encoder{
		counter: NewSequenceCounter(),
		options: options,
	}
}

// Sequence returns the encoder's counter
func (e *Encoder) Sequence() *SequenceCounter {
	return e.counter
}

// Command frames an ad-hoc command. The counter advances on every call.
func (e *Encoder) Command(command int, data string) (Packet, error) {
	if command < 0 || command > 0xFF {
		return nil, &CommandError{Command: command, Err: ErrInvalidCommand}
	}

	seq := e.counter.Next()
	if !e.options.StampSequence {
		seq = FixedSequence
	}

	packet, err := BuildPacket(seq, byte(command), ToAnsi(data))
	if err != nil {
		return nil, &CommandError{Command: command, Err: err}
	}
	return packet, nil
}

// requiredCommand frames a command whose payload may not be blank
func (e *Encoder) requiredCommand(command int, data string) (Packet, error) {
	if strings.TrimSpace(data) == "" {
		return nil, &CommandError{Command: command, Err: ErrEmptyPayload}
	}
	return e.Command(command, data)
}

// Report requests an X or Z report
func (e *Encoder) Report(reportType ReportType) (Packet, error) {
	switch reportType {
	case ReportTypeX:
		return e.Command(CmdReport, "2")
	case ReportTypeZ:
		return e.Command(CmdReport, "0")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReportType, string(reportType))
	}
}

func (e *Encoder) CancelReceipt() (Packet, error) {
	return e.Command(CmdCancelReceipt, "")
}

func (e *Encoder) DeleteArticles() (Packet, error) {
	return e.Command(CmdArticles, "DA")
}

func (e *Encoder) CloseReceipt() (Packet, error) {
	return e.Command(CmdCloseReceipt, "")
}

func (e *Encoder) PrintDuplicate() (Packet, error) {
	return e.Command(CmdPrintDuplicate, "1")
}

func (e *Encoder) Status() (Packet, error) {
	return e.Command(CmdStatus, "")
}

func (e *Encoder) SetOperatorName(name string) (Packet, error) {
	return e.Command(CmdSetOperatorName, "1,000000,"+name)
}

func (e *Encoder) InitializeReceipt() (Packet, error) {
	return e.Command(CmdInitializeReceipt, "1;000000;1")
}

// registerItemPayload builds the article programming string. The two tab
// markers are sent as a backslash followed by 't', which is what the firmware expects.
func registerItemPayload(item Item) (string, error) {
	if strings.TrimSpace(item.ItemID) == "" {
		return "", fmt.Errorf("%w: item id is empty", ErrEmptyPayload)
	}

	tax, err := item.TaxCategory.Token()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`p%s%s,1,%s,10000,..\t%s\t..`,
		tax, item.ItemID, formatMoney(item.Price), item.Description), nil
}

// RegisterItem programs one article into the register
func (e *Encoder) RegisterItem(item Item) (Packet, error) {
	payload, err := registerItemPayload(item.Normalized())
	if err != nil {
		return nil, &CommandError{Command: CmdArticles, Err: err}
	}
	return e.requiredCommand(CmdArticles, payload)
}

// RegisterItems programs every article, in order
func (e *Encoder) RegisterItems(items []Item) ([]Packet, error) {
	packets := make([]Packet, 0, len(items))
	for i, item := range items {
		packet, err := e.RegisterItem(item)
		if err != nil {
			return nil, fmt.Errorf("register item %d: %w", i, err)
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

func sellItemPayload(item Item) (string, error) {
	if strings.TrimSpace(item.ItemID) == "" {
		return "", fmt.Errorf("%w: item id is empty", ErrEmptyPayload)
	}

	prefix := "D"
	amount := item.Amount
	if amount.IsNegative() {
		prefix = "D^"
		amount = amount.Neg()
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(item.ItemID)
	sb.WriteString("*")
	sb.WriteString(formatQuantity(amount))
	sb.WriteString("#")
	sb.WriteString(formatMoney(item.Price))
	if !item.Rebate.IsZero() {
		sb.WriteString(",-")
		sb.WriteString(formatMoney(item.Rebate))
	}

	return sb.String(), nil
}

// SellItem sells (or voids, for a negative amount) one programmed article
func (e *Encoder) SellItem(item Item) (Packet, error) {
	payload, err := sellItemPayload(item.Normalized())
	if err != nil {
		return nil, &CommandError{Command: CmdSellItem, Err: err}
	}
	return e.requiredCommand(CmdSellItem, payload)
}

// SellItems sells every article, in order
func (e *Encoder) SellItems(items []Item) ([]Packet, error) {
	packets := make([]Packet, 0, len(items))
	for i, item := range items {
		packet, err := e.SellItem(item)
		if err != nil {
			return nil, fmt.Errorf("sell item %d: %w", i, err)
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

// Payments encodes a payment batch followed by the closing payment command.
// The amount is only sent when the batch holds a single payment.
func (e *Encoder) Payments(payments []Payment) ([]Packet, error) {
	packets := make([]Packet, 0, len(payments)+1)

	for i, payment := range payments {
		payment = payment.Normalized()

		method, err := payment.Method.Token()
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, &CommandError{Command: CmdPayment, Err: err})
		}

		payload := method
		if len(payments) == 1 {
			payload += formatMoney(payment.Value)
		}

		packet, err := e.requiredCommand(CmdPayment, payload)
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, err)
		}
		packets = append(packets, packet)
	}

	end, err := e.Command(CmdPaymentEnd, "")
	if err != nil {
		return nil, err
	}
	return append(packets, end), nil
}

// programLineTexts renders the total line and the trailer line
func (e *Encoder) programLineTexts(line ProgramLine) (string, string) {
	change := line.TotalCashPaid.Sub(line.TotalInvoiceValue)
	changeText := "0.00"
	if !change.IsNegative() {
		changeText = formatFixed2(change)
	}

	total := fmt.Sprintf(e.options.Messages.TotalLine, formatFixed2(line.TotalCashPaid), changeText)

	var trailer string
	if line.TotalPoints.IsZero() {
		trailer = fmt.Sprintf(e.options.Messages.ThankYouLine, line.ReceiptNumber)
	} else {
		trailer = fmt.Sprintf(e.options.Messages.PointsLine,
			line.BonusPoints.String(), line.TotalPoints.String(), line.ReceiptNumber)
	}

	return total, trailer
}

// ProgramLines encodes the change/total line and the thank-you or bonus-points line
func (e *Encoder) ProgramLines(line ProgramLine) ([]Packet, error) {
	total, trailer := e.programLineTexts(line)

	totalPacket, err := e.Command(CmdProgramLine, total)
	if err != nil {
		return nil, err
	}

	trailerPacket, err := e.Command(CmdProgramLine, trailer)
	if err != nil {
		return nil, err
	}

	return []Packet{totalPacket, trailerPacket}, nil
}
