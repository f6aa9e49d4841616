package cache

import "testing"

func TestFingerprintIsDeterministicAndNamespaced(t *testing.T) {
	a := Fingerprint(NamespaceAudio, "hello", "voice-1")
	b := Fingerprint(NamespaceAudio, "hello", "voice-1")
	if a != b {
		t.Fatalf("Fingerprint is not deterministic: %q != %q", a, b)
	}

	c := Fingerprint(NamespaceVisual, "hello", "voice-1")
	if a == c {
		t.Fatalf("fingerprints across namespaces must differ even for identical parts")
	}

	d := Fingerprint(NamespaceAudio, "hello", "voice-2")
	if a == d {
		t.Fatalf("fingerprints for different parts must differ")
	}
}

func TestFingerprintPartOrderMatters(t *testing.T) {
	a := Fingerprint(NamespaceScript, "foo", "bar")
	b := Fingerprint(NamespaceScript, "bar", "foo")
	if a == b {
		t.Fatalf("swapping part order should change the fingerprint")
	}
}
