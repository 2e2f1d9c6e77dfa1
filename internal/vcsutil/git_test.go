package vcsutil

import "testing"

func TestParseShortstat(t *testing.T) {
	cases := []struct {
		in   string
		want DiffStat
	}{
		{" 3 files changed, 42 insertions(+), 7 deletions(-)", DiffStat{3, 42, 7}},
		{" 1 file changed, 1 insertion(+)", DiffStat{1, 1, 0}},
		{"", DiffStat{}},
	}
	for _, c := range cases {
		got := parseShortstat(c.in)
		if got != c.want {
			t.Errorf("parseShortstat(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}
