package security

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// blankCert stands in for an identity certificate with an empty subject DN,
// enough to exercise CheckCreateParticipant's FindGrant lookup without any
// real PEM/PKCS7 material.
var blankCert = &x509.Certificate{Subject: pkix.Name{}}

func TestCheckCreateParticipantOptedOutDomain(t *testing.T) {
	e := &Engine{
		Logger: zerolog.Nop(),
		rules:  []DomainRule{{DomainId: 0, EnableJoinAccessControl: false}},
	}
	require.NoError(t, e.CheckCreateParticipant(0))
}

func TestCheckCreateParticipantUnknownDomainDenied(t *testing.T) {
	e := &Engine{Logger: zerolog.Nop()}
	err := e.CheckCreateParticipant(7)
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "governance", se.Stage)
}

func TestCheckCreateParticipantNoGrantDenied(t *testing.T) {
	e := &Engine{
		Logger:       zerolog.Nop(),
		identityCert: blankCert,
		rules:        []DomainRule{{DomainId: 0, EnableJoinAccessControl: true}},
	}
	err := e.CheckCreateParticipant(0)
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "permissions", se.Stage)
}

func TestCheckCreateParticipantDenyingGrantDenied(t *testing.T) {
	e := &Engine{
		Logger:       zerolog.Nop(),
		identityCert: blankCert,
		rules:        []DomainRule{{DomainId: 0, EnableJoinAccessControl: true}},
		grants: []Grant{{
			SubjectName: "",
			NotBefore:   time.Now().Add(-time.Hour),
			NotAfter:    time.Now().Add(time.Hour),
			Allow:       false,
		}},
	}
	err := e.CheckCreateParticipant(0)
	require.Error(t, err)
}

func TestValidateRemotePermissionsWrongPluginClassDenied(t *testing.T) {
	e := &Engine{Logger: zerolog.Nop()}
	_, err := e.ValidateRemotePermissions(0, RemoteCredential{PluginClassId: "DDS:Access:Permissions:0.9"})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "identity", se.Stage)
}

func TestValidateRemotePermissionsOptedOutDomainAllowed(t *testing.T) {
	e := &Engine{
		Logger: zerolog.Nop(),
		rules:  []DomainRule{{DomainId: 0, EnableJoinAccessControl: false}},
	}
	handle, err := e.ValidateRemotePermissions(0, RemoteCredential{PluginClassId: PluginClassId, IdentityCertSubject: "CN=remote"})
	require.NoError(t, err)
	require.True(t, handle.Grant.Allow)
	require.Equal(t, "CN=remote", handle.SubjectName)
}

func TestValidateRemotePermissionsUnknownDomainDenied(t *testing.T) {
	e := &Engine{Logger: zerolog.Nop()}
	_, err := e.ValidateRemotePermissions(7, RemoteCredential{PluginClassId: PluginClassId})
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "governance", se.Stage)
}

func TestParticipantSecurityAttributesDerivesTriplePerCategory(t *testing.T) {
	e := &Engine{
		Logger: zerolog.Nop(),
		rules: []DomainRule{{
			DomainId:                 0,
			RTPSProtectionKind:       ProtectionEncryptOriginAuth,
			DiscoveryProtectionKind:  "SIGN",
			LivelinessProtectionKind: "NONE",
		}},
	}
	attrs, err := e.ParticipantSecurityAttributes(0)
	require.NoError(t, err)

	require.True(t, attrs.RTPS.IsProtected)
	require.True(t, attrs.RTPS.IsEncrypted)
	require.True(t, attrs.RTPS.IsOriginAuthenticated)

	require.True(t, attrs.Discovery.IsProtected)
	require.False(t, attrs.Discovery.IsEncrypted)
	require.False(t, attrs.Discovery.IsOriginAuthenticated)

	require.False(t, attrs.Liveliness.IsProtected)
	require.False(t, attrs.Liveliness.IsEncrypted)
}

func TestParticipantSecurityAttributesUnknownDomainErrors(t *testing.T) {
	e := &Engine{Logger: zerolog.Nop()}
	_, err := e.ParticipantSecurityAttributes(9)
	require.Error(t, err)
}
