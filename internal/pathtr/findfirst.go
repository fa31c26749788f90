package pathtr

import "sort"

// DirEntry is one materialized directory listing entry: the coined DOS
// 8.3 name paired with its host filename, per spec.md §3's find-first
// DTA cache.
type DirEntry struct {
	DOSName  string
	HostName string
	IsDir    bool
	Size     uint32
}

// findEntry is one pool slot: a lazily materialized directory listing
// plus a cursor, keyed by DTA linear address.
type findEntry struct {
	entries []DirEntry
	cursor  int
}

// FindPool is the find-first/find-next DTA-keyed pool of spec.md §3,
// capacity unbounded (a map rather than the source's fixed 64-slot
// array), per the "Find-first pool" design note of spec.md §9.
type FindPool struct {
	slots map[uint32]*findEntry
}

// NewFindPool returns an empty pool.
func NewFindPool() *FindPool {
	return &FindPool{slots: make(map[uint32]*findEntry)}
}

// FindFirst allocates (or reuses) the slot for dta, materializes the
// directory listing for pattern matched against coined host names in
// hostDir's raw listing, and returns the first entry plus ok=false if
// the listing is empty.
func (p *FindPool) FindFirst(dta uint32, hostDir string, rawNames []string, isDir func(string) bool, sizeOf func(string) uint32, pattern string) (DirEntry, bool) {
	coined := CoinNames(rawNames)

	hostsByDOS := make(map[string][]string)
	for host, dos := range coined {
		hostsByDOS[dos] = append(hostsByDOS[dos], host)
	}

	var dosNames []string
	for dos := range hostsByDOS {
		if MatchGlob(pattern, dos) {
			dosNames = append(dosNames, dos)
		}
	}
	sort.Strings(dosNames)

	var entries []DirEntry
	for _, dos := range dosNames {
		host := hostsByDOS[dos][0]
		entries = append(entries, DirEntry{
			DOSName:  dos,
			HostName: host,
			IsDir:    isDir(host),
			Size:     sizeOf(host),
		})
	}

	slot := &findEntry{entries: entries}
	p.slots[dta] = slot
	return p.current(dta)
}

// FindNext advances the cursor for dta's slot and returns the next entry.
func (p *FindPool) FindNext(dta uint32) (DirEntry, bool) {
	slot, ok := p.slots[dta]
	if !ok {
		return DirEntry{}, false
	}
	slot.cursor++
	entry, ok := p.current(dta)
	if !ok {
		delete(p.slots, dta)
	}
	return entry, ok
}

func (p *FindPool) current(dta uint32) (DirEntry, bool) {
	slot, ok := p.slots[dta]
	if !ok || slot.cursor >= len(slot.entries) {
		return DirEntry{}, false
	}
	return slot.entries[slot.cursor], true
}

// Release frees the slot for dta, e.g. when it is reused for a different
// search before being exhausted.
func (p *FindPool) Release(dta uint32) {
	delete(p.slots, dta)
}
