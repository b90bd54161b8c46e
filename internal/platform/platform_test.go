package platform

import "testing"

func TestDetectHeaderTakesPrecedence(t *testing.T) {
	if Detect("browser", "some react native agent") != Browser {
		t.Fatal("header hint should win over user-agent sniffing")
	}
}

func TestDetectFromUserAgent(t *testing.T) {
	cases := map[string]Platform{
		"MyApp/1.0 (React Native)":    ReactNative,
		"Mozilla/5.0 Chrome/1.0":      Browser,
		"node-fetch/1.0":              Server,
	}
	for ua, want := range cases {
		if got := Detect("", ua); got != want {
			t.Fatalf("Detect(%q) = %v, want %v", ua, got, want)
		}
	}
}

func TestDetectPreservesUnrecognizedHeaderHint(t *testing.T) {
	got := Detect("deno", "some agent")
	if got.String() != "deno" {
		t.Fatalf("Detect(%q).String() = %q, want the raw hint preserved", "deno", got.String())
	}
	if Capabilities(got) == nil {
		t.Fatal("an unrecognized platform still falls back to the memory capability set")
	}
}

func TestCapabilitiesTableIsExact(t *testing.T) {
	assertEqual(t, Capabilities(Browser), []string{"localStorage", "indexedDB", "sessionStorage"})
	assertEqual(t, Capabilities(ReactNative), []string{"asyncStorage", "sqlite", "secureStorage"})
	assertEqual(t, Capabilities(Server), []string{"filesystem", "sqlite", "memory"})
	assertEqual(t, Capabilities(Other), []string{"memory"})
}

func assertEqual(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
