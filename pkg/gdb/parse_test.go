package gdb

import (
	"reflect"
	"testing"
)

func TestThreadIDs(t *testing.T) {
	for _, tc := range []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "simple",
			lines: []string{"Thread 1 (p 1)", "Thread 2 (p 2)", "no marker here"},
			want:  []string{"1", "2"},
		},
		{
			name: "gdb listing",
			lines: []string{
				"  Id   Target Id         Frame",
				"* 2    Thread 0xb7c8db70 (LWP 1235) 0x00110416 in __kernel_vsyscall ()",
				"  1    Thread 0xb7fe76c0 (LWP 1234) 0x00132416 in pthread_join ()",
			},
			want: []string{"2", "1"},
		},
		{
			name:  "marker without digits",
			lines: []string{"Thread identifiers unavailable"},
			want:  nil,
		},
		{
			name:  "empty",
			lines: nil,
			want:  nil,
		},
		{
			name:  "duplicates preserved",
			lines: []string{"Thread 7", "Thread 7"},
			want:  []string{"7", "7"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := ThreadIDs(tc.lines)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAttachFailed(t *testing.T) {
	lines := []string{
		"Attaching to process 1234",
		"ptrace: Operation not permitted.",
	}
	msg, failed := AttachFailed(lines)
	if !failed {
		t.Fatal("expected attach failure")
	}
	if want := "ptrace: Operation not permitted."; msg != want {
		t.Errorf("expected message %q, got %q", want, msg)
	}
}

func TestAttachFailedSuccessReply(t *testing.T) {
	lines := []string{
		"Attaching to process 1234",
		"Reading symbols from /usr/bin/foo...done.",
	}
	if msg, failed := AttachFailed(lines); failed {
		t.Errorf("expected success, got failure with %q", msg)
	}
}

func TestAttachFailedPrefixOnly(t *testing.T) {
	// The marker counts only at the start of a line.
	lines := []string{"warning: something about ptrace: denied"}
	if _, failed := AttachFailed(lines); failed {
		t.Error("mid-line marker should not classify as failure")
	}
}
