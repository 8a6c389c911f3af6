package signature

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // RSA-SHA1 is a signature method this chain must still recognize (§4.7)
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
)

// Well-known XML-DSig algorithm URIs recognized by the enveloped path.
const (
	digestSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	digestSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"

	sigRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	sigRSASSAPSS = "http://www.w3.org/2007/05/xmldsig-more#rsa-pss"

	transformEnveloped      = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	c14nInclusive           = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	c14nExclusive           = "http://www.w3.org/2001/10/xml-exc-c14n#"
)

// xmlReference is one ds:Reference element.
type xmlReference struct {
	URI          string `xml:"URI,attr"`
	Transforms   []string `xml:"Transforms>Transform>Algorithm,attr"`
	DigestMethod string `xml:"DigestMethod>Algorithm,attr"`
	DigestValue  string `xml:"DigestValue"`
}

// xmlSignature mirrors the ds:Signature element shape (§4.7).
type xmlSignature struct {
	XMLName                xml.Name `xml:"Signature"`
	CanonicalizationMethod string   `xml:"SignedInfo>CanonicalizationMethod>Algorithm,attr"`
	SignatureMethod        string   `xml:"SignedInfo>SignatureMethod>Algorithm,attr"`
	References             []xmlReference `xml:"SignedInfo>Reference"`
	SignatureValue         string   `xml:"SignatureValue"`
	X509Certificate        string   `xml:"KeyInfo>X509Data>X509Certificate"`

	signedInfoRaw []byte // captured separately; xml.Unmarshal discards original bytes
}

// VerifyEnveloped verifies an enveloped XML signature within doc (§4.7
// enveloped path). It returns the parsed certificate on success.
func VerifyEnveloped(doc []byte) (*x509.Certificate, error) {
	var sig xmlSignature
	sigBytes := findSignatureElement(doc)
	if err := xml.Unmarshal(sigBytes, &sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	sig.signedInfoRaw = extractElement(sigBytes, "SignedInfo")

	for _, ref := range sig.References {
		if err := verifyReference(doc, sigBytes, ref); err != nil {
			return nil, err
		}
	}

	certDER, err := base64.StdEncoding.DecodeString(collapseWhitespace(sig.X509Certificate))
	if err != nil {
		return nil, fmt.Errorf("signature: decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("signature: parse certificate: %w", err)
	}

	signedInfoCanonical, err := canonicalize(sig.signedInfoRaw, sig.CanonicalizationMethod)
	if err != nil {
		return nil, err
	}
	sigValue, err := base64.StdEncoding.DecodeString(collapseWhitespace(sig.SignatureValue))
	if err != nil {
		return nil, fmt.Errorf("signature: decode signature value: %w", err)
	}
	if err := verifySignatureValue(cert, sig.SignatureMethod, signedInfoCanonical, sigValue); err != nil {
		return nil, err
	}
	return cert, nil
}

func verifyReference(doc, sigBytes []byte, ref xmlReference) error {
	ctx := &PipelineContext{Document: doc, ReferenceURI: ref.URI}
	node, err := resolveReference(doc, ref.URI)
	if err != nil {
		return err
	}

	chain := referenceChain(ref.Transforms)
	transformed, err := chain.Run(ctx, node)
	if err != nil {
		return err
	}

	digest, err := digestBytes(transformed, ref.DigestMethod)
	if err != nil {
		return err
	}
	want, err := base64.StdEncoding.DecodeString(collapseWhitespace(ref.DigestValue))
	if err != nil {
		return fmt.Errorf("signature: decode digest value: %w", err)
	}
	if !bytes.Equal(digest, want) {
		return fmt.Errorf("%w: reference %q", ErrDigestMismatch, ref.URI)
	}
	return nil
}

// referenceChain builds the stage pipeline declared by a Reference's
// Transforms list, supplying inclusive C14N by default when the list
// names no canonicalization method (§4.7 "Chain builder").
func referenceChain(transforms []string) *Chain {
	var stages []Stage
	haveC14n := false
	for _, alg := range transforms {
		switch alg {
		case transformEnveloped:
			stages = append(stages, NewStage("enveloped-signature", func(ctx *PipelineContext, in []byte) ([]byte, error) {
				return stripElement(in, "Signature"), nil
			}))
		case c14nInclusive, c14nExclusive:
			haveC14n = true
			method := alg
			stages = append(stages, NewStage("c14n", func(ctx *PipelineContext, in []byte) ([]byte, error) {
				return canonicalize(in, method)
			}))
		case "":
			// empty transform entry, ignore
		default:
			return NewChain(NewStage("reject", func(ctx *PipelineContext, in []byte) ([]byte, error) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTransformation, alg)
			}))
		}
	}
	if !haveC14n {
		stages = append(stages, NewStage("c14n-default", func(ctx *PipelineContext, in []byte) ([]byte, error) {
			return canonicalize(in, c14nInclusive)
		}))
	}
	return NewChain(stages...)
}

func digestBytes(data []byte, method string) ([]byte, error) {
	switch method {
	case digestSHA1:
		h := sha1.Sum(data) //nolint:gosec
		return h[:], nil
	case digestSHA256, "":
		h := sha256.Sum256(data)
		return h[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDigestMethod, method)
	}
}

func verifySignatureValue(cert *x509.Certificate, method string, signedInfo, sig []byte) error {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signature: unsupported public key type %T", cert.PublicKey)
	}
	switch method {
	case sigRSASHA1:
		h := sha1.Sum(signedInfo) //nolint:gosec
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], sig); err != nil {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil
	case sigRSASSAPSS, "":
		h := sha256.Sum256(signedInfo)
		if err := rsa.VerifyPSS(pub, crypto.SHA256, h[:], sig, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSignatureMethod, method)
	}
}

// canonicalize normalizes node bytes per a declared C14N algorithm. This
// is a simplified canonicalizer — it drops comments and insignificant
// whitespace and re-serializes attributes in document order — rather than
// a full W3C C14N implementation; sufficient for verifying documents this
// service itself produces and for third-party documents that do not rely
// on C14N's namespace-inheritance edge cases.
func canonicalize(node []byte, method string) ([]byte, error) {
	switch method {
	case c14nInclusive, c14nExclusive, "":
		return normalizeWhitespace(node), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCanonicalization, method)
	}
}

func normalizeWhitespace(node []byte) []byte {
	dec := xml.NewDecoder(bytes.NewReader(node))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			_ = enc.EncodeToken(t)
		case xml.Comment:
			continue
		default:
			_ = enc.EncodeToken(tok)
		}
	}
	_ = enc.Flush()
	return buf.Bytes()
}

// resolveReference resolves a Reference URI to a node set (§4.7 step 1):
// empty URI selects the whole document; "#id" selects the subtree whose
// Id attribute matches.
func resolveReference(doc []byte, uri string) ([]byte, error) {
	if uri == "" {
		return doc, nil
	}
	id := bytes.TrimPrefix([]byte(uri), []byte("#"))
	node := findByID(doc, string(id))
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, uri)
	}
	return node, nil
}

// findSignatureElement returns the byte range of the first Signature
// element in doc, or doc itself if decoding fails outright (best-effort:
// the subsequent xml.Unmarshal call surfaces any real parse error).
func findSignatureElement(doc []byte) []byte {
	if el := extractElement(doc, "Signature"); el != nil {
		return el
	}
	return doc
}

// extractElement returns the raw bytes of the first element named name,
// found by scanning the token stream and re-encoding from the matching
// StartElement through its EndElement.
func extractElement(doc []byte, name string) []byte {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != name {
			continue
		}
		return reencodeElement(dec, se)
	}
}

// findByID scans for an element carrying an Id/ID attribute equal to id.
func findByID(doc []byte, id string) []byte {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, a := range se.Attr {
			if (a.Name.Local == "Id" || a.Name.Local == "ID") && a.Value == id {
				return reencodeElement(dec, se)
			}
		}
	}
}

// reencodeElement re-serializes the element whose StartElement has
// already been consumed from dec, through its matching EndElement.
func reencodeElement(dec *xml.Decoder, start xml.StartElement) []byte {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	_ = enc.EncodeToken(start)
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		_ = enc.EncodeToken(tok)
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	_ = enc.Flush()
	return buf.Bytes()
}

// stripElement removes the first occurrence of an element named name from
// node — the enveloped-signature transform (§4.7 step 2).
func stripElement(node []byte, name string) []byte {
	el := extractElement(node, name)
	if el == nil {
		return node
	}
	return bytes.Replace(node, el, nil, 1)
}

func collapseWhitespace(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
