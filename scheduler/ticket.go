package scheduler

import (
	"crypto/rand"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-sectorbuilder/types"
)

// RandomTicketSource returns a ticket source that fills TicketBytes
// with process-local randomness. It is a stand-in for the real chain
// client a production deployment would supply (this engine has no
// network access of its own); BlockHeight is always zero.
func RandomTicketSource() func() (types.SealTicket, error) {
	return func() (types.SealTicket, error) {
		var ticket types.SealTicket
		if _, err := rand.Read(ticket.TicketBytes[:]); err != nil {
			return ticket, xerrors.Errorf("generating seal ticket randomness: %w", err)
		}
		return ticket, nil
	}
}
