package classifier

import "testing"

func TestClassify(t *testing.T) {
	c := New(DefaultRules())

	cases := []struct {
		argv []string
		want string
	}{
		{[]string{"claude", "-p", "do the thing"}, "claude-cli"},
		{[]string{"/usr/local/bin/claude"}, "claude-cli"},
		{[]string{"python3", "script.py"}, "python"},
		{[]string{"git", "status"}, "git"},
		{[]string{"bash", "-c", "echo hi"}, "shell"},
		{[]string{}, "shell"},
	}

	for _, tc := range cases {
		if got := c.Classify(tc.argv); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.argv, got, tc.want)
		}
	}
}
