// Package ui renders conversation snapshots to a terminal. It observes
// read-only views handed over by the session layer and never modifies
// domain state or runtime behavior.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"nego-lab/domain"
	"nego-lab/domain/nego"
	"nego-lab/projection"
)

// TermRenderer prints one conversation view per transition. Safe for
// concurrent use; snapshots from different conversations interleave whole.
type TermRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
}

func NewTermRenderer(out io.Writer, colours bool) *TermRenderer {
	if out == nil {
		out = os.Stdout
	}
	return &TermRenderer{out: out, colours: colours}
}

func (r *TermRenderer) RenderConversation(view projection.ConversationView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	header := fmt.Sprintf("  ====== %s | %s ======", view.Conversation, r.describeState(view))
	if r.colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Fprintln(r.out, header)

	if view.PeerOnline {
		r.printTinted(color.FgCyan, "peer online")
	}
	if view.PeerTyping {
		r.printTinted(color.FgCyan, "peer typing...")
	}
	if view.Unread > 0 {
		r.printTinted(color.FgYellow, fmt.Sprintf("%d unread", view.Unread))
	}

	if len(view.Messages) > 0 {
		r.messageTable(view.Messages)
	}
	if len(view.Offers) > 0 {
		r.offerTable(view.Offers)
	}
	if view.Completed {
		r.printTinted(color.FgGreen, fmt.Sprintf("deal closed at %d", view.DealPrice))
	}
}

func (r *TermRenderer) RenderNotice(id domain.ConversationID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := fmt.Sprintf("[%s] %v", id, err)
	if r.colours {
		line = color.New(color.FgRed).Render(line)
	}
	fmt.Fprintln(r.out, line)
}

func (r *TermRenderer) describeState(view projection.ConversationView) string {
	switch view.State {
	case nego.StateOfferPending:
		if view.ActiveOffer != nil {
			return fmt.Sprintf("offer %s pending at %d", view.ActiveOffer.ID, view.ActiveOffer.Price)
		}
		return "offer pending"
	case nego.StateResolved:
		if view.ActiveOffer != nil {
			return fmt.Sprintf("offer %s %s", view.ActiveOffer.ID, view.ActiveOffer.Resolution.Status)
		}
		return "resolved"
	default:
		return "no offer"
	}
}

func (r *TermRenderer) printTinted(fg color.Color, line string) {
	if r.colours {
		line = color.New(fg).Render(line)
	}
	fmt.Fprintln(r.out, line)
}

func (r *TermRenderer) messageTable(messages []domain.Message) {
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Time", "From", "Type", "Body"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Local().Format("15:04:05"),
			m.SenderID,
			string(m.Type),
			m.Body,
		})
	}
	table.Render()
}

func (r *TermRenderer) offerTable(offers []domain.Offer) {
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Offer", "Proposer", "Price", "Qty", "Status", "Expires"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, o := range offers {
		expires := "-"
		if o.ExpiresAt != nil {
			expires = o.ExpiresAt.Local().Format(time.DateTime)
		}
		table.Append([]string{
			string(o.ID),
			o.ProposerID,
			fmt.Sprintf("%d", o.Price),
			fmt.Sprintf("%d", o.Quantity),
			string(o.Resolution.Status),
			expires,
		})
	}
	table.Render()
}
