package security

import (
	"crypto/x509"
	"encoding/pem"

	"github.com/fullsailor/pkcs7"
)

// LoadCACertificate parses the first PEM block of pemBytes as an X.509
// certificate; callers read the file themselves.
func LoadCACertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, wrap("identity", errNoPEMBlock)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, wrap("identity", err)
	}
	return cert, nil
}

var errNoPEMBlock = &pemError{}

type pemError struct{}

func (*pemError) Error() string { return "no PEM block found" }

// VerifySignedDocument verifies an S/MIME (PKCS7 detached signature)
// wrapped document against ca, returning the verified XML body. PKCS7 is
// out of scope for every library carried by this stack, so this reaches
// for github.com/fullsailor/pkcs7 directly.
func VerifySignedDocument(smimeBytes []byte, ca *x509.Certificate) ([]byte, error) {
	p7, err := pkcs7.Parse(smimeBytes)
	if err != nil {
		return nil, wrap("governance", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(ca)
	p7.Certificates = append(p7.Certificates, ca)

	if err := p7.VerifyWithChain(pool); err != nil {
		return nil, wrap("governance", err)
	}

	return p7.Content, nil
}

// SubjectName extracts the certificate subject's distinguished name
// directly off the participant's identity certificate.
func SubjectName(cert *x509.Certificate) string {
	return cert.Subject.String()
}
