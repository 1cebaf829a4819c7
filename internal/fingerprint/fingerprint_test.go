package fingerprint

import "testing"

func TestDigestIsDeterministic(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x01, 0x02}
	first := Digest(payload)
	second := Digest(payload)
	if first != second {
		t.Fatalf("expected identical digests, got %q and %q", first, second)
	}
	if first == "" {
		t.Fatalf("digest must not be empty")
	}
}

func TestDigestDiffersForDifferentContent(t *testing.T) {
	left := Digest([]byte("organic chemistry notes"))
	right := Digest([]byte("organic chemistry notes v2"))
	if left == right {
		t.Fatalf("expected distinct digests for distinct content")
	}
}

func TestDigestOfEmptyInputIsDefined(t *testing.T) {
	first := Digest(nil)
	second := Digest([]byte{})
	if first != second {
		t.Fatalf("nil and empty slices must digest identically: %q vs %q", first, second)
	}
	if first == "" {
		t.Fatalf("empty input must still yield a digest")
	}
}

func TestTextSurrogateNormalizesWhitespace(t *testing.T) {
	a := TextSurrogate("  Linear Algebra ", " week3.pdf ")
	b := TextSurrogate("Linear Algebra", "week3.pdf")
	if a != b {
		t.Fatalf("surrogates should match after trimming: %q vs %q", a, b)
	}
	if DigestText(a) != DigestText(b) {
		t.Fatalf("surrogate digests should match")
	}
}

func TestDigestTextMatchesDigestOfBytes(t *testing.T) {
	surrogate := TextSurrogate("Calculus II", "integrals.pdf")
	if DigestText(surrogate) != Digest([]byte(surrogate)) {
		t.Fatalf("text digest must equal byte digest of the same surrogate")
	}
}
