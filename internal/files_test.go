package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.fastq.gz")
	if err := os.WriteFile(name, nil, 0666); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.fastq.gz")
	if err := os.Symlink(name, link); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		file1, file2 string
		same         bool
	}{
		{name, name, true},
		{name, filepath.Join(dir, ".", "x", "..", "a.fastq.gz"), true},
		{name, link, true},
		{name, filepath.Join(dir, "b.fastq.gz"), false},
		{"x_1.fq.gz", "x_2.fq.gz", false},
		{"x_1.fq.gz", "./x_1.fq.gz", true},
	} {
		if SamePath(tc.file1, tc.file2) != tc.same {
			t.Errorf("SamePath(%v, %v) should be %v", tc.file1, tc.file2, tc.same)
		}
	}
}

func TestByteBuffer(t *testing.T) {
	buf := ReserveByteBuffer()
	if len(buf) != 0 {
		t.Fatal("reserved buffer not empty")
	}
	buf = append(buf, "@r1\nACGT\n+\nFFFF\n"...)
	ReleaseByteBuffer(buf)
	if buf = ReserveByteBuffer(); len(buf) != 0 {
		t.Error("released buffer not reset")
	}
}
