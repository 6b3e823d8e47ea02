package security

import (
	"encoding/xml"
	"time"
)

// permissionsXML mirrors the subset of the OMG permissions document schema
// needed to resolve a subject name and timestamp to a grant: one <grant>
// per subject, with a validity window and an allow/deny default.
type permissionsXML struct {
	XMLName xml.Name `xml:"dds"`
	Grants  []struct {
		Subject   string `xml:"subject_name"`
		NotBefore string `xml:"validity>not_before"`
		NotAfter  string `xml:"validity>not_after"`
		Default   string `xml:"default"` // "ALLOW" or "DENY"
	} `xml:"permissions>grant"`
}

const permissionsTimeLayout = "2006-01-02T15:04:05"

// ParsePermissions parses a permissions document's XML body (already
// extracted from its S/MIME wrapper).
func ParsePermissions(xmlBody []byte) ([]Grant, error) {
	var doc permissionsXML
	if err := xml.Unmarshal(xmlBody, &doc); err != nil {
		return nil, wrap("permissions", err)
	}
	var grants []Grant
	for _, g := range doc.Grants {
		nb, err := time.Parse(permissionsTimeLayout, g.NotBefore)
		if err != nil {
			return nil, wrap("permissions", err)
		}
		na, err := time.Parse(permissionsTimeLayout, g.NotAfter)
		if err != nil {
			return nil, wrap("permissions", err)
		}
		grants = append(grants, Grant{
			SubjectName: g.Subject,
			NotBefore:   nb,
			NotAfter:    na,
			Allow:       g.Default == "ALLOW",
		})
	}
	return grants, nil
}

// FindGrant returns the first grant whose subject matches and whose
// validity window covers now.
func FindGrant(grants []Grant, subjectName string, now time.Time) (Grant, bool) {
	for _, g := range grants {
		if g.SubjectName == subjectName && g.ValidAt(now) {
			return g, true
		}
	}
	return Grant{}, false
}
