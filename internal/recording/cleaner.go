package recording

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microbit-kws-lab/internal/logging"
)

type pairInfo struct {
	jsonPath string
	wavPath  string
	mod      time.Time
}

func listPairs(dir string) ([]pairInfo, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pairs []pairInfo
	for _, fi := range files {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		jsonPath := filepath.Join(dir, name)
		st, err := os.Stat(jsonPath)
		if err != nil {
			continue
		}
		wavPath := strings.TrimSuffix(jsonPath, ".json") + ".wav"
		if b, err := os.ReadFile(jsonPath); err == nil {
			var sc Sidecar
			if json.Unmarshal(b, &sc) == nil && sc.WAVPath != "" {
				wavPath = sc.WAVPath
			}
		}
		pairs = append(pairs, pairInfo{jsonPath: jsonPath, wavPath: wavPath, mod: st.ModTime()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].mod.Before(pairs[j].mod) })
	return pairs, nil
}

func (p pairInfo) remove() {
	_ = os.Remove(p.jsonPath)
	if p.wavPath != "" {
		_ = os.Remove(p.wavPath)
	}
}

// Prune removes wav/sidecar pairs older than retention, then the oldest
// pairs beyond maxFiles. Zero retention or maxFiles disables that rule.
func Prune(dir string, retention time.Duration, maxFiles int, now time.Time) (int, error) {
	pairs, err := listPairs(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	kept := pairs[:0]
	cutoff := now.Add(-retention)
	for _, p := range pairs {
		if retention > 0 && p.mod.Before(cutoff) {
			p.remove()
			removed++
			continue
		}
		kept = append(kept, p)
	}
	if maxFiles > 0 && len(kept) > maxFiles {
		for _, p := range kept[:len(kept)-maxFiles] {
			p.remove()
			removed++
		}
	}
	return removed, nil
}

// StartCleaner periodically prunes dir until ctx is done. Caller must call
// wg.Add(1) first; the goroutine calls wg.Done on exit.
func StartCleaner(ctx context.Context, wg *sync.WaitGroup, dir string, retention, interval time.Duration, maxFiles int) {
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := Prune(dir, retention, maxFiles, time.Now())
				if err != nil {
					logging.Debugw("recording: cleanup failed", "dir", dir, "err", err)
					continue
				}
				if n > 0 {
					logging.Infow("recording: cleanup removed detections", "dir", dir, "removed", n)
				}
			}
		}
	}()
}
