package records

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// letterTemplate is the public-records request body. Kept as plain text so the
// output can be pasted into an email or letterhead document unchanged.
var letterTemplate = template.Must(template.New("records-request").Parse(
	`To the Records Officer, {{.ScopeDisplay}}:

Pursuant to applicable public records law, I request copies of the following
government data concerning {{.EntityName}}{{if .AliasClause}} (also known as {{.AliasClause}}){{end}}:

1. All payment records, invoices, and disbursement registers involving the
   above-named party for the period {{.Start}} through {{.End}}.
2. All contracts, grant agreements, and amendments with the above-named party
   in effect during that period.
3. All licensing, inspection, and compliance records concerning the
   above-named party.

If any portion of this request is denied, please cite the specific statutory
basis for each withholding and release all reasonably segregable portions. If
fees will exceed $25, please contact me with an estimate before proceeding.

This request is made for research purposes in the public interest. Electronic
copies (CSV or PDF) are preferred where available.

Thank you for your assistance.

Dated: {{.Today}}
`))

type letterData struct {
	ScopeDisplay string
	EntityName   string
	AliasClause  string
	Start        string
	End          string
	Today        string
}

// BuildRequest renders a public-records request letter for an entity. Aliases
// matching the entity name are dropped; start/end default to a trailing
// three-year window when zero.
func BuildRequest(scopeDisplay, entityName string, aliases []string, start, end time.Time) (string, error) {
	now := time.Now()
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.AddDate(-3, 0, 0)
	}

	seen := map[string]struct{}{strings.ToLower(entityName): {}}
	var kept []string
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, fmt.Sprintf("%q", a))
	}

	var buf bytes.Buffer
	err := letterTemplate.Execute(&buf, letterData{
		ScopeDisplay: scopeDisplay,
		EntityName:   entityName,
		AliasClause:  strings.Join(kept, ", "),
		Start:        start.Format("January 2, 2006"),
		End:          end.Format("January 2, 2006"),
		Today:        now.Format("January 2, 2006"),
	})
	if err != nil {
		return "", fmt.Errorf("render records request: %w", err)
	}
	return buf.String(), nil
}
