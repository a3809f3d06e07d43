package linker

import (
	"strconv"
	"strings"

	"github.com/ksco/rvld/pkg/utils"
)

const arMagic = "!<arch>\n"

// ReadArchiveMembers splits a System V .a archive into its member object
// files. Long member names (BSD/SysV "//" string table convention) are
// resolved through the special "//" member if present.
func ReadArchiveMembers(file *File) []*File {
	contents := file.Contents
	utils.Assert(strings.HasPrefix(string(contents), arMagic))
	pos := len(arMagic)

	var strtab []byte
	var files []*File

	for pos+60 <= len(contents) {
		hdr := contents[pos : pos+60]
		pos += 60

		sizeStr := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		utils.MustNo(err)

		data := contents[pos : pos+int(size)]
		pos += int(size)
		if pos%2 == 1 && pos < len(contents) {
			pos++
		}

		name := strings.TrimRight(string(hdr[0:16]), " ")
		switch {
		case name == "//":
			strtab = data
			continue
		case name == "/":
			continue
		case strings.HasPrefix(name, "/"):
			off, err := strconv.Atoi(name[1:])
			if err != nil || strtab == nil {
				continue
			}
			name = readStrtabName(strtab, off)
		default:
			name = strings.TrimSuffix(name, "/")
		}

		files = append(files, &File{
			Name:     file.Name + ":" + name,
			Contents: data,
			Parent:   file,
		})
	}

	return files
}

func readStrtabName(strtab []byte, off int) string {
	if off < 0 || off >= len(strtab) {
		return ""
	}
	end := off
	for end < len(strtab) && strtab[end] != '\n' {
		end++
	}
	return strings.TrimRight(string(strtab[off:end]), "/")
}

// CheckFileCompatibility rejects object files whose machine type does not
// match (or cannot seed) the link's emulation.
func CheckFileCompatibility(ctx *Context, file *File) {
	mt := GetMachineTypeFromContents(file.Contents)
	if ctx.Args.Emulation == MachineTypeNone {
		ctx.Args.Emulation = mt
		return
	}
	if mt != MachineTypeNone && mt != ctx.Args.Emulation {
		utils.Fatal(file.Name + ": incompatible file type")
	}
}
