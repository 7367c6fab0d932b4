package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"

	"github.com/rescp17/lanTFTP/internal/style"
	"github.com/rescp17/lanTFTP/internal/util"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	// MaxEntries is how many records Prune keeps.
	MaxEntries = 1000
)

// Entry is one finished server-side transfer.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Session     string    `json:"session"`
	Peer        string    `json:"peer"`
	Op          string    `json:"op"` // "read" or "write"
	FileName    string    `json:"file_name"`
	Bytes       int64     `json:"bytes"`
	Blocks      int       `json:"blocks"`
	Retransmits int       `json:"retransmits,omitempty"`
	FileHash    string    `json:"file_hash,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	Duration    float64   `json:"duration_seconds"`
}

// DefaultPath returns ~/.lantftp/history.jsonl.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lantftp", "history.jsonl"), nil
}

// Journal appends entries to a JSON-lines file. It is safe for concurrent use.
type Journal struct {
	path string
	mu   sync.Mutex
}

func Open(path string) (*Journal, error) {
	if err := util.EnsureDirectory(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("history directory: %w", err)
	}
	return &Journal{path: path}, nil
}

func (j *Journal) Path() string { return j.path }

// Write appends entry, filling in the ID and timestamp when missing.
func (j *Journal) Write(entry Entry) error {
	if entry.ID == "" {
		entry.ID = petname.Generate(2, "-")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// Load reads every entry, newest first. Malformed lines are skipped.
func (j *Journal) Load() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load()
}

func (j *Journal) load() ([]Entry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, k int) bool {
		return entries[i].Timestamp.After(entries[k].Timestamp)
	})
	return entries, scanner.Err()
}

// Prune rewrites the journal keeping only the newest max entries.
func (j *Journal) Prune(max int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load()
	if err != nil || len(entries) <= max {
		return err
	}
	entries = entries[:max]

	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".history-*.jsonl")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	// oldest first, matching append order
	for i := len(entries) - 1; i >= 0; i-- {
		data, err := json.Marshal(entries[i])
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		w.Write(append(data, '\n'))
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}

var columnWidths = []int{16, 5, 22, 10, 6, 7, 21, 11}

// Render writes entries as a table.
func Render(w io.Writer, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, style.HelpStyle.Render("No transfer history found."))
		return
	}

	header := util.Row([]string{"DATE", "OP", "FILE", "SIZE", "TIME", "STATUS", "PEER", "HASH"}, columnWidths)
	fmt.Fprintln(w, style.HeaderStyle.Render(header))

	for _, e := range entries {
		hash := e.FileHash
		if len(hash) > 8 {
			hash = hash[:8] + "..."
		}
		cells := []string{
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Op,
			e.FileName,
			util.FormatSize(e.Bytes),
			fmt.Sprintf("%.1fs", e.Duration),
			e.Status,
			e.Peer,
			hash,
		}
		for i, c := range cells {
			cells[i] = util.PadRight(c, columnWidths[i])
		}

		// Style after padding so escape codes do not count towards the width.
		if e.Op == "write" {
			cells[1] = style.WriteStyle.Render(cells[1])
		} else {
			cells[1] = style.ReadStyle.Render(cells[1])
		}
		cells[2] = style.FileStyle.Render(cells[2])
		cells[6] = style.MutedStyle.Render(cells[6])
		cells[7] = style.MutedStyle.Render(cells[7])
		if e.Status == StatusSuccess {
			cells[5] = style.SuccessStyle.Render(cells[5])
		} else {
			cells[5] = style.ErrorStyle.Render(cells[5])
		}
		fmt.Fprintln(w, util.Row(cells, nil))
	}
}
