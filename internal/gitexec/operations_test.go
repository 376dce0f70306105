package gitexec

import "testing"

func TestPeeledOrDirect(t *testing.T) {
	cases := []struct {
		name string
		refs []RefHash
		want string
	}{
		{
			name: "peeled wins",
			refs: []RefHash{
				{Hash: "aaa", Ref: "refs/tags/v1.0.0"},
				{Hash: "bbb", Ref: "refs/tags/v1.0.0^{}"},
			},
			want: "bbb",
		},
		{
			name: "direct only",
			refs: []RefHash{
				{Hash: "ccc", Ref: "refs/heads/main"},
			},
			want: "ccc",
		},
		{
			name: "empty",
			refs: nil,
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PeeledOrDirect(tc.refs)
			if tc.want == "" {
				if ok {
					t.Fatalf("expected no match, got %q", got)
				}
				return
			}
			if !ok || got != tc.want {
				t.Fatalf("got (%q, %v), want %q", got, ok, tc.want)
			}
		})
	}
}

func TestLines(t *testing.T) {
	out := "abc\ndef\r\n\n ghi \n"
	got := Lines(out)
	want := []string{"abc", "def", " ghi "}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
