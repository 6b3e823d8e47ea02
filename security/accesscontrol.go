package security

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtpsfix/rtpsd/admin"
)

// Engine implements core.AccessControlChecker: load the permissions CA,
// verify the governance document's signature, select the DomainRule for
// this domain, extract the participant's subject name from its identity
// certificate, verify the permissions document's signature, and find a
// time-valid grant for that subject. Every step failure is a
// *security.Error -- there is no implicit allow path.
type Engine struct {
	zerolog.Logger

	permissionsCA *x509.Certificate
	identityCert  *x509.Certificate
	governanceXML []byte
	permissionsXML []byte

	rules  []DomainRule
	grants []Grant
}

// NewEngine loads and signature-verifies the governance and permissions
// documents once at startup, caching their parsed contents; per-domain
// admission then only needs FindRule/FindGrant, no repeated I/O.
func NewEngine(permissionsCAPath, identityCertPath, governancePath, permissionsPath string, logger zerolog.Logger) (*Engine, error) {
	caPEM, err := os.ReadFile(permissionsCAPath)
	if err != nil {
		return nil, wrap("identity", err)
	}
	ca, err := LoadCACertificate(caPEM)
	if err != nil {
		return nil, err
	}

	identPEM, err := os.ReadFile(identityCertPath)
	if err != nil {
		return nil, wrap("identity", err)
	}
	identCert, err := LoadCACertificate(identPEM)
	if err != nil {
		return nil, err
	}

	govSigned, err := os.ReadFile(governancePath)
	if err != nil {
		return nil, wrap("governance", err)
	}
	govXML, err := VerifySignedDocument(govSigned, ca)
	if err != nil {
		return nil, err
	}
	rules, err := ParseGovernance(govXML)
	if err != nil {
		return nil, err
	}

	permSigned, err := os.ReadFile(permissionsPath)
	if err != nil {
		return nil, wrap("permissions", err)
	}
	permXML, err := VerifySignedDocument(permSigned, ca)
	if err != nil {
		return nil, err
	}
	grants, err := ParsePermissions(permXML)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Logger:         logger,
		permissionsCA:  ca,
		identityCert:   identCert,
		governanceXML:  govXML,
		permissionsXML: permXML,
		rules:          rules,
		grants:         grants,
	}, nil
}

// CheckCreateParticipant runs the full domain-admission check: find the
// DomainRule for domainId, extract this participant's subject name, find
// a currently-valid Grant for it, and deny unless the grant explicitly
// allows.
func (e *Engine) CheckCreateParticipant(domainId int) error {
	rule, ok := FindRule(e.rules, domainId)
	if !ok {
		admin.AccessDenials.Inc()
		return &Error{Stage: "governance", Reason: fmt.Sprintf("no domain rule for domain %d", domainId)}
	}
	if !rule.EnableJoinAccessControl {
		return nil // governance explicitly opts this domain out of admission checks
	}

	subject := SubjectName(e.identityCert)
	grant, ok := FindGrant(e.grants, subject, time.Now())
	if !ok {
		admin.AccessDenials.Inc()
		return &Error{Stage: "permissions", Reason: fmt.Sprintf("no valid grant for subject %q", subject)}
	}
	if !grant.Allow {
		admin.AccessDenials.Inc()
		return &Error{Stage: "permissions", Reason: fmt.Sprintf("grant for subject %q denies participant creation", subject)}
	}

	e.Debug().Str("subject", subject).Int("domain", domainId).Msg("participant admitted")
	return nil
}

// Handle builds the PermissionsHandle for domainId from the rules and
// grants NewEngine cached, on every call; the handle itself is not cached.
// It does not check the grant's Allow flag or the rule's join setting.
func (e *Engine) Handle(domainId int) (PermissionsHandle, error) {
	rule, ok := FindRule(e.rules, domainId)
	if !ok {
		return PermissionsHandle{}, &Error{Stage: "governance", Reason: "no domain rule"}
	}
	subject := SubjectName(e.identityCert)
	grant, ok := FindGrant(e.grants, subject, time.Now())
	if !ok {
		return PermissionsHandle{}, &Error{Stage: "permissions", Reason: "no valid grant"}
	}
	return PermissionsHandle{DomainId: domainId, SubjectName: subject, Rule: rule, Grant: grant}, nil
}

// PluginClassId names the access control plugin class this core
// implements. A remote participant's credential must name the same
// plugin class for its permissions token to be comparable to ours.
const PluginClassId = "DDS:Access:Permissions:1.0"

// RemoteCredential is what a remote participant presents during
// authentication for access-control admission: its plugin class id (for
// the PermissionsToken comparison DDS-Security requires before trusting
// any of the rest), the subject name off its identity certificate, and
// its signed permissions document.
type RemoteCredential struct {
	PluginClassId       string
	IdentityCertSubject string
	PermissionsXML      []byte
}

// ValidateRemotePermissions is the remote-participant counterpart to
// CheckCreateParticipant: it runs during authentication, before any RTPS
// traffic from the remote participant is trusted, and admits it only if
// its PermissionsToken names this same plugin class, the domain's
// governance requires no further check or its own signed permissions
// document grants it a valid, allowing grant.
func (e *Engine) ValidateRemotePermissions(domainId int, cred RemoteCredential) (PermissionsHandle, error) {
	if cred.PluginClassId != PluginClassId {
		admin.AccessDenials.Inc()
		return PermissionsHandle{}, &Error{Stage: "identity", Reason: fmt.Sprintf("remote plugin class id %q does not match %q", cred.PluginClassId, PluginClassId)}
	}

	rule, ok := FindRule(e.rules, domainId)
	if !ok {
		admin.AccessDenials.Inc()
		return PermissionsHandle{}, &Error{Stage: "governance", Reason: fmt.Sprintf("no domain rule for domain %d", domainId)}
	}
	if !rule.EnableJoinAccessControl {
		return PermissionsHandle{DomainId: domainId, SubjectName: cred.IdentityCertSubject, Rule: rule, Grant: Grant{SubjectName: cred.IdentityCertSubject, Allow: true}}, nil
	}

	permXML, err := VerifySignedDocument(cred.PermissionsXML, e.permissionsCA)
	if err != nil {
		return PermissionsHandle{}, err
	}
	grants, err := ParsePermissions(permXML)
	if err != nil {
		return PermissionsHandle{}, err
	}

	grant, ok := FindGrant(grants, cred.IdentityCertSubject, time.Now())
	if !ok {
		admin.AccessDenials.Inc()
		return PermissionsHandle{}, &Error{Stage: "permissions", Reason: fmt.Sprintf("no valid grant for remote subject %q", cred.IdentityCertSubject)}
	}
	if !grant.Allow {
		admin.AccessDenials.Inc()
		return PermissionsHandle{}, &Error{Stage: "permissions", Reason: fmt.Sprintf("grant for remote subject %q denies participant creation", cred.IdentityCertSubject)}
	}

	e.Debug().Str("subject", cred.IdentityCertSubject).Int("domain", domainId).Msg("remote participant admitted")
	return PermissionsHandle{DomainId: domainId, SubjectName: cred.IdentityCertSubject, Rule: rule, Grant: grant}, nil
}

// ParticipantSecurityAttributes resolves domainId's DomainRule and
// derives the protected/encrypted/origin-authenticated triple that
// governs RTPS, discovery, and liveliness traffic in that domain.
func (e *Engine) ParticipantSecurityAttributes(domainId int) (ParticipantSecurityAttributes, error) {
	rule, ok := FindRule(e.rules, domainId)
	if !ok {
		return ParticipantSecurityAttributes{}, &Error{Stage: "governance", Reason: fmt.Sprintf("no domain rule for domain %d", domainId)}
	}
	return DeriveParticipantSecurityAttributes(rule), nil
}
