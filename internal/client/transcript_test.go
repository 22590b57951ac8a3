package client

import "testing"

func TestTrimTrailingPromptUserHost(t *testing.T) {
	got := TrimTrailingPrompts("some output\nuser@host:~$ ")
	if got != "some output\n" {
		t.Errorf("got %q, want %q", got, "some output\n")
	}
}

func TestTrimTrailingPromptBare(t *testing.T) {
	for _, prompt := range []string{"$ ", "# ", "> ", "$"} {
		got := TrimTrailingPrompts("hello\n" + prompt)
		if got != "hello\n" {
			t.Errorf("prompt %q: got %q, want %q", prompt, got, "hello\n")
		}
	}
}

func TestTrimTrailingPromptColored(t *testing.T) {
	in := "ls output\n\x1b[32muser@box\x1b[0m:\x1b[34m~/src\x1b[0m$ "
	got := TrimTrailingPrompts(in)
	if got != "ls output\n" {
		t.Errorf("got %q, want %q", got, "ls output\n")
	}
}

func TestTrimAllPromptTranscript(t *testing.T) {
	if got := TrimTrailingPrompts("user@host:~$ \n$ \n"); got != "" {
		t.Errorf("all-prompt transcript: got %q, want empty", got)
	}
}

func TestTrimEmptyTranscript(t *testing.T) {
	if got := TrimTrailingPrompts(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestTrimPreservesInteriorPrompts(t *testing.T) {
	in := "user@host:~$ ls\nfile1\nfile2\nuser@host:~$ "
	want := "user@host:~$ ls\nfile1\nfile2\n"
	if got := TrimTrailingPrompts(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTrimDropsTrailingBlankLines(t *testing.T) {
	in := "output\n\n\nuser@host:~$ "
	if got := TrimTrailingPrompts(in); got != "output\n" {
		t.Errorf("got %q, want %q", got, "output\n")
	}
}

func TestTrimLeavesPlainOutputAlone(t *testing.T) {
	in := "total 4 files\ndone\n"
	if got := TrimTrailingPrompts(in); got != in {
		t.Errorf("got %q, want unchanged %q", got, in)
	}
}

func TestTrimHandlesCarriageReturns(t *testing.T) {
	in := "output\r\nuser@host:~$ \r"
	if got := TrimTrailingPrompts(in); got != "output\r\n" {
		t.Errorf("got %q, want %q", got, "output\r\n")
	}
}

func TestIsPromptLineRejectsCommandOutput(t *testing.T) {
	for _, line := range []string{
		"price: 4$",
		"PS> is a powershell prompt string",
		"echo done",
	} {
		if isPromptLine(line) {
			t.Errorf("%q misclassified as prompt", line)
		}
	}
}
