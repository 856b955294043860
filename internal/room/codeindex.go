package room

import (
	"fmt"
	"sync"
)

// codeIndex maps join codes to live room ids. Codes are short and
// human-shareable, so collisions across live rooms are possible and
// must be rejected at reservation time.
type codeIndex struct {
	mu    sync.Mutex
	byVal map[string]string // code -> room id ("" while reserved)
}

func newCodeIndex() *codeIndex {
	return &codeIndex{byVal: make(map[string]string)}
}

const codeReserveAttempts = 10

// reserve generates an unused code and holds it until bind or release.
func (i *codeIndex) reserve(gen func() (string, error)) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for attempt := 0; attempt < codeReserveAttempts; attempt++ {
		code, err := gen()
		if err != nil {
			return "", err
		}
		if _, taken := i.byVal[code]; taken {
			continue
		}
		i.byVal[code] = ""
		return code, nil
	}
	return "", fmt.Errorf("no free join code after %d attempts", codeReserveAttempts)
}

// bind attaches a reserved code to its room id.
func (i *codeIndex) bind(code, roomID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.byVal[code] = roomID
}

// lookup resolves a code to a live, bound room id.
func (i *codeIndex) lookup(code string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.byVal[code]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// release frees a code for reuse.
func (i *codeIndex) release(code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.byVal, code)
}
