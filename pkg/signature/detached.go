package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // CMS SignerInfo digest algorithm may legitimately be SHA-1
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// contentInfo mirrors CMS's outer ContentInfo wrapper.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// signedData mirrors CMS SignedData (RFC 5652 §5.1), trimmed to the
// fields the verification chain actually consumes.
type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue `asn1:"set"`
	EncapContentInfo asn1.RawValue
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos       []signerInfo  `asn1:"set"`
}

type issuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type signerInfo struct {
	Version                  int
	IssuerAndSerialNumber    issuerAndSerial
	DigestAlgorithm          algorithmIdentifier
	AuthenticatedAttributes  asn1.RawValue `asn1:"optional,tag:0"`
	DigestEncryptionAlgorithm algorithmIdentifier
	EncryptedDigest          []byte
}

// oid strings for the two digest algorithms the enveloped path also
// recognizes, kept consistent across both paths.
var (
	oidSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

	oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidData       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
)

// TrustList is the external collaborator supplying trusted issuer
// certificates and revocation data (§4.7 detached path: "the trust list
// is provided by an external collaborator").
type TrustList interface {
	IssuerCertificate(issuer pkix.RDNSequence, serial *big.Int) (*x509.Certificate, error)
	IsRevoked(cert *x509.Certificate, at time.Time) (bool, error)
}

// VerifyDetached verifies a detached CMS SignedData envelope around
// content, per §4.7's detached path. It returns the signer certificates
// that verified successfully.
func VerifyDetached(envelope, content []byte, trust TrustList, now time.Time) ([]*x509.Certificate, error) {
	var outer contentInfo
	if _, err := asn1.Unmarshal(envelope, &outer); err != nil {
		return nil, fmt.Errorf("%w: outer ContentInfo: %v", ErrMalformedSignature, err)
	}

	var sd signedData
	if _, err := asn1.Unmarshal(outer.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("%w: SignedData: %v", ErrMalformedSignature, err)
	}

	var verified []*x509.Certificate
	for _, si := range sd.SignerInfos {
		var issuerSeq pkix.RDNSequence
		if _, err := asn1.Unmarshal(si.IssuerAndSerialNumber.Issuer.FullBytes, &issuerSeq); err != nil {
			return nil, fmt.Errorf("%w: issuer name: %v", ErrMalformedSignature, err)
		}

		cert, err := trust.IssuerCertificate(issuerSeq, si.IssuerAndSerialNumber.SerialNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoTrustedIssuer, err)
		}

		revoked, err := trust.IsRevoked(cert, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCRLStale, err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: certificate revoked", ErrCertificateChainInvalid)
		}

		digest, err := digestCMS(content, si.DigestAlgorithm.Algorithm)
		if err != nil {
			return nil, err
		}
		if err := verifyCMSSignature(cert, si.DigestEncryptionAlgorithm.Algorithm, digest, si.EncryptedDigest); err != nil {
			return nil, err
		}
		verified = append(verified, cert)
	}
	return verified, nil
}

// SignDetached produces a minimal detached CMS SignedData envelope over
// content, signed with key under cert, the counterpart VerifyDetached
// checks. Used by the service itself to issue its own ErxReceipt (§4.3),
// which is why no TrustList is involved here — the service is signing,
// not verifying a third party.
//
// DigestEncryptionAlgorithm carries the plain digest OID rather than a
// PKCS#1 signature OID, mirroring VerifyDetached's own simplified
// algorithm-identifier convention so the two stay consistent with each
// other even though neither is a byte-exact RFC 5652 encoder.
func SignDetached(content []byte, cert *x509.Certificate, key *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(content)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	var issuerSeq pkix.RDNSequence
	if _, err := asn1.Unmarshal(cert.RawIssuer, &issuerSeq); err != nil {
		return nil, fmt.Errorf("%w: issuer name: %v", ErrMalformedSignature, err)
	}
	issuerBytes, err := asn1.Marshal(issuerSeq)
	if err != nil {
		return nil, fmt.Errorf("%w: issuer name: %v", ErrMalformedSignature, err)
	}

	si := signerInfo{
		Version: 1,
		IssuerAndSerialNumber: issuerAndSerial{
			Issuer:       asn1.RawValue{FullBytes: issuerBytes},
			SerialNumber: cert.SerialNumber,
		},
		DigestAlgorithm:           algorithmIdentifier{Algorithm: oidSHA256},
		DigestEncryptionAlgorithm: algorithmIdentifier{Algorithm: oidSHA256},
		EncryptedDigest:           sig,
	}

	digAlgBytes, err := asn1.MarshalWithParams([]algorithmIdentifier{{Algorithm: oidSHA256}}, "set")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	encapBytes, err := asn1.Marshal(struct{ ContentType asn1.ObjectIdentifier }{oidData})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	sd := signedData{
		Version:          1,
		DigestAlgorithms: asn1.RawValue{FullBytes: digAlgBytes},
		EncapContentInfo: asn1.RawValue{FullBytes: encapBytes},
		SignerInfos:      []signerInfo{si},
	}
	sdBytes, err := asn1.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	outer := contentInfo{
		ContentType: oidSignedData,
		Content:     asn1.RawValue{Class: 2, Tag: 0, IsCompound: true, Bytes: sdBytes},
	}
	out, err := asn1.Marshal(outer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return out, nil
}

func digestCMS(content []byte, alg asn1.ObjectIdentifier) ([]byte, error) {
	switch {
	case alg.Equal(oidSHA1):
		h := sha1.Sum(content) //nolint:gosec
		return h[:], nil
	case alg.Equal(oidSHA256):
		h := sha256.Sum256(content)
		return h[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDigestMethod, alg.String())
	}
}

func verifyCMSSignature(cert *x509.Certificate, alg asn1.ObjectIdentifier, digest, sig []byte) error {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signature: unsupported public key type %T", cert.PublicKey)
	}
	var hashAlg crypto.Hash
	switch {
	case alg.Equal(oidSHA1):
		hashAlg = crypto.SHA1
	case alg.Equal(oidSHA256):
		hashAlg = crypto.SHA256
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSignatureMethod, alg.String())
	}
	if err := rsa.VerifyPKCS1v15(pub, hashAlg, digest, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}
