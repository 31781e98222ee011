// internal/security/scrubber_test.go
package security

import (
	"strings"
	"testing"
)

func TestScrubDetail_FlattensControlChars(t *testing.T) {
	result := ScrubDetail("bad\x00input\nline2\rline3")

	for _, r := range result {
		if r < 0x20 {
			t.Errorf("result contains control character 0x%02x: %q", r, result)
		}
	}
	if !strings.Contains(result, "bad") || !strings.Contains(result, "line3") {
		t.Errorf("readable content should be preserved: %q", result)
	}
}

func TestScrubDetail_HidesWorkDir(t *testing.T) {
	input := "open /var/tmp/zplot/zplot-render-6f1c2a/scene.mp4: no such file or directory"
	result := ScrubDetail(input)

	if strings.Contains(result, "/var/tmp") || strings.Contains(result, "scene.mp4") {
		t.Errorf("work directory path not scrubbed: %q", result)
	}
	if !strings.Contains(result, "[workdir]") {
		t.Errorf("expected [workdir] placeholder: %q", result)
	}
	if !strings.HasSuffix(result, "no such file or directory") {
		t.Errorf("message tail should be preserved: %q", result)
	}
}

func TestScrubDetail_Truncates(t *testing.T) {
	result := ScrubDetail(strings.Repeat("x", 2000))
	if len(result) != MaxDetailLength {
		t.Errorf("len = %d, want %d", len(result), MaxDetailLength)
	}
}

func TestScrubDetail_TruncatesOnRuneBoundary(t *testing.T) {
	result := ScrubDetail("x" + strings.Repeat("é", 600))
	if len(result) > MaxDetailLength {
		t.Errorf("len = %d, want <= %d", len(result), MaxDetailLength)
	}
	if strings.ContainsRune(result, '�') {
		t.Errorf("truncation split a rune: %q", result[len(result)-4:])
	}
}

func TestScrubDetail_ShortUnchanged(t *testing.T) {
	input := "function expression too long"
	if result := ScrubDetail(input); result != input {
		t.Errorf("ScrubDetail(%q) = %q", input, result)
	}
}

func TestTailOutput_CollapsesProgress(t *testing.T) {
	input := "ffmpeg version 6\nframe=  1\rframe= 50\rframe=150 fps=30\nConversion failed!\n"
	result := TailOutput(input)

	if strings.Contains(result, "frame=  1") || strings.Contains(result, "frame= 50") {
		t.Errorf("intermediate progress should be dropped: %q", result)
	}
	if !strings.Contains(result, "frame=150 fps=30") {
		t.Errorf("final progress line should be kept: %q", result)
	}
	if !strings.HasSuffix(result, "Conversion failed!") {
		t.Errorf("expected trailing error line: %q", result)
	}
}

func TestTailOutput_KeepsTail(t *testing.T) {
	input := strings.Repeat("a", 5000) + "\nthe real error"
	result := TailOutput(input)
	if len(result) > MaxToolOutput {
		t.Errorf("len = %d, want <= %d", len(result), MaxToolOutput)
	}
	if !strings.HasSuffix(result, "the real error") {
		t.Errorf("tail should be kept: %q", result[len(result)-20:])
	}
}
