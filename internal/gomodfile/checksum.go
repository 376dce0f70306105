package gomodfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChecksumEntry is one line of a go.sum-style checksum file: a module at a
// version, and whether the line is a `/go.mod`-only entry (no source
// archive required).
type ChecksumEntry struct {
	Module        string
	Version       string
	Hash          string
	ModuleFileOnly bool
}

// ParseChecksumFile reads path and partitions its entries the way the
// driver needs: modules with a source entry and modules with only a
// module-file entry.
func ParseChecksumFile(path string) (withSource []ChecksumEntry, moduleFileOnly []ChecksumEntry, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("gomodfile: open checksum file: %w", err)
	}
	defer f.Close()
	return ParseChecksum(f)
}

// ParseChecksum parses "module version hash" triples from r, splitting
// `/go.mod`-suffixed versions into the module-file-only set. Module paths
// are run through UnescapePath: go.sum itself stores paths unescaped, but
// a discovery input echoing a GOMODCACHE directory listing may carry the
// on-disk `!`-escaped form, and UnescapePath is a no-op on anything
// already unescaped.
func ParseChecksum(r io.Reader) (withSource []ChecksumEntry, moduleFileOnly []ChecksumEntry, err error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("gomodfile: checksum line %d: expected 3 fields, got %d", lineNo, len(fields))
		}

		modulePath, version, hash := fields[0], fields[1], fields[2]
		if unescaped, uerr := UnescapePath(modulePath); uerr == nil {
			modulePath = unescaped
		}
		entry := ChecksumEntry{Module: modulePath, Hash: hash}

		if strings.HasSuffix(version, "/go.mod") {
			entry.Version = strings.TrimSuffix(version, "/go.mod")
			entry.ModuleFileOnly = true
			moduleFileOnly = append(moduleFileOnly, entry)
			continue
		}

		entry.Version = version
		withSource = append(withSource, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("gomodfile: scan checksum file: %w", err)
	}
	return withSource, moduleFileOnly, nil
}
