package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Filing types that carry structured statements.
const (
	NSDTypeITR = "INFORMACOES TRIMESTRAIS"
	NSDTypeDFP = "DEMONSTRACOES FINANCEIRAS PADRONIZADAS"
)

// NSD is one filing header, keyed by the regulator's monotonic
// submission number. Rows are created by ingestion and never mutated
// in place: a reissue of the same quarter arrives under a new nsd.
type NSD struct {
	NSD                int       `json:"nsd"`
	CompanyName        string    `json:"company_name"`
	Quarter            time.Time `json:"quarter"`
	Version            int       `json:"version"`
	NSDType            string    `json:"nsd_type"`
	DRI                string    `json:"dri"`
	Auditor            string    `json:"auditor"`
	ResponsibleAuditor string    `json:"responsible_auditor"`
	Protocol           string    `json:"protocol"`
	SentDate           time.Time `json:"sent_date"`
	Reason             string    `json:"reason"`
	Hash               string    `json:"-"`
}

// Validate enforces the primary-key invariant before persistence.
func (n *NSD) Validate() error {
	if n.NSD <= 0 {
		return eris.Errorf("model: invalid nsd %d", n.NSD)
	}
	if n.SentDate.IsZero() {
		return eris.Errorf("model: nsd %d has no sent_date", n.NSD)
	}
	return nil
}
