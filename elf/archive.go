package elf

import (
	"strconv"
	"strings"
)

// ArchiveMember is one `ar` archive entry: a name, the member's raw bytes
// (a borrowed sub-slice of the archive's bytes), and the offset of its
// 60-byte header in the archive (the value the archive-symbol-index
// member uses to point back at members).
type ArchiveMember struct {
	Name   string
	Offset int
	Data   []byte
}

const arMagic = "!<arch>\n"

// ParseArchive splits an `ar` archive's bytes into its members. Long file
// names via the GNU `//` extended-name-table member are resolved
// transparently; the `/` symbol-index member is returned as a normal
// member (ArchiveSymbolIndex below re-decodes it).
func ParseArchive(data []byte) ([]ArchiveMember, error) {
	if len(data) < len(arMagic) || string(data[:len(arMagic)]) != arMagic {
		return nil, wrap(ErrBadMagic, "missing ar archive magic")
	}

	var longNames string
	var members []ArchiveMember
	off := len(arMagic)

	for off+60 <= len(data) {
		hdr := data[off : off+60]
		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, wrap(ErrTruncated, "archive member at %d: bad size field %q", off, sizeStr)
		}
		body := off + 60
		if body+size > len(data) {
			return nil, wrap(ErrTruncated, "archive member %q declares size %d past end of file", name, size)
		}
		memberData := data[body : body+size]

		switch {
		case name == "//":
			longNames = string(memberData)
		case name == "/" || name == "/SYM64/":
			members = append(members, ArchiveMember{Name: name, Offset: off, Data: memberData})
		case strings.HasPrefix(name, "/"):
			// GNU extended name: "/<offset-into-//-member>"
			idx, err := strconv.Atoi(strings.TrimSpace(name[1:]))
			if err == nil && idx >= 0 && idx < len(longNames) {
				end := strings.IndexAny(longNames[idx:], "/\n")
				if end < 0 {
					end = len(longNames) - idx
				}
				name = longNames[idx : idx+end]
			}
			members = append(members, ArchiveMember{Name: name, Offset: off, Data: memberData})
		default:
			members = append(members, ArchiveMember{Name: strings.TrimSuffix(name, "/"), Offset: off, Data: memberData})
		}

		next := body + size
		if next%2 == 1 { // members are 2-byte aligned, padded with '\n'
			next++
		}
		off = next
	}
	return members, nil
}

// ArchiveSymbolIndexEntry maps a symbol name to the byte offset, within
// the archive, of the member that defines it.
type ArchiveSymbolIndexEntry struct {
	Name         string
	MemberOffset uint32
}

// ArchiveSymbolIndex decodes the well-known `/` symbol-index member (big
// endian count + offsets, followed by NUL-terminated names) that `ar`
// writes when asked to index an archive (`ar s`, or implicitly by most
// linkers).
func ArchiveSymbolIndex(member ArchiveMember) ([]ArchiveSymbolIndexEntry, error) {
	data := member.Data
	if len(data) < 4 {
		return nil, wrap(ErrTruncated, "archive symbol index shorter than 4 bytes")
	}
	count := be32(data)
	offsets := make([]uint32, count)
	pos := 4
	for i := range offsets {
		if pos+4 > len(data) {
			return nil, wrap(ErrTruncated, "archive symbol index truncated in offset table")
		}
		offsets[i] = be32(data[pos:])
		pos += 4
	}
	names := data[pos:]
	entries := make([]ArchiveSymbolIndexEntry, 0, count)
	nameStart := 0
	for i := 0; i < int(count) && nameStart < len(names); i++ {
		end := nameStart
		for end < len(names) && names[end] != 0 {
			end++
		}
		entries = append(entries, ArchiveSymbolIndexEntry{
			Name:         string(names[nameStart:end]),
			MemberOffset: offsets[i],
		})
		nameStart = end + 1
	}
	return entries, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
