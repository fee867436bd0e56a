package fs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendNDJSONLine_Multiple(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.ndjson")

	for i := 1; i <= 3; i++ {
		require.NoError(t, AppendNDJSONLine(path, map[string]interface{}{"id": i, "tags": []string{"a"}}))
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		ids = append(ids, decoded["id"].(float64))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []float64{1, 2, 3}, ids)
}

func TestAppendNDJSONLine_InvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ndjson")

	err := AppendNDJSONLine(path, map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestAppendNDJSONLine_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.ndjson")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, AppendNDJSONLine(path, map[string]int{"n": i}))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var v map[string]int
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		lines++
	}
	assert.Equal(t, 20, lines)
}

func TestWithFileLock_SerializesCallers(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "locks", ".mutex")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithFileLock(lockPath, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.FileExists(t, lockPath)
}

func TestWithFileLock_ReturnsCallbackError(t *testing.T) {
	boom := errors.New("boom")

	err := WithFileLock(filepath.Join(t.TempDir(), ".mutex"), func() error { return boom })
	assert.ErrorIs(t, err, boom)
}
