package config

import (
	"fmt"
	"regexp"
	"strconv"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/image"
	"github.com/fieldforge/goecat/pkg/mapping"
	"gopkg.in/ini.v1"
)

// Matches PDO entry sections, e.g. [Pdo.1A00.1] : index 0x1A00 sub 1
var matchPdoRegExp = regexp.MustCompile(`^Pdo\.([0-9A-Fa-f]{1,4})\.([0-9A-Fa-f]{1,2})$`)

// LoadDeviceFile parses an INI device description into a slave
// description. The [Device] section carries identity, each
// [Pdo.<index>.<sub>] section one process data entry. Section order
// defines the packing order inside the image.
func LoadDeviceFile(path string, position uint16) (mapping.SlaveDescription, error) {
	desc := mapping.SlaveDescription{Position: position}

	opts := ini.LoadOptions{Insensitive: false}
	f, err := ini.LoadSources(opts, path)
	if err != nil {
		return desc, fmt.Errorf("%w: %v", goecat.ErrConfig, err)
	}

	device, err := f.GetSection("Device")
	if err != nil {
		return desc, fmt.Errorf("%w: %v has no [Device] section", goecat.ErrConfig, path)
	}
	desc.Name = device.Key("Name").String()
	if vendorId, err := strconv.ParseUint(device.Key("VendorId").String(), 0, 32); err == nil {
		desc.VendorId = uint32(vendorId)
	}
	if productCode, err := strconv.ParseUint(device.Key("ProductCode").String(), 0, 32); err == nil {
		desc.ProductCode = uint32(productCode)
	}

	for _, section := range f.Sections() {
		groups := matchPdoRegExp.FindStringSubmatch(section.Name())
		if groups == nil {
			continue
		}
		pdoIndex, err := strconv.ParseUint(groups[1], 16, 16)
		if err != nil {
			return desc, fmt.Errorf("%w: bad pdo index in %v", goecat.ErrConfig, section.Name())
		}
		subIndex, err := strconv.ParseUint(groups[2], 16, 8)
		if err != nil {
			return desc, fmt.Errorf("%w: bad pdo subindex in %v", goecat.ErrConfig, section.Name())
		}
		entry, err := parsePdoSection(section)
		if err != nil {
			return desc, fmt.Errorf("%w in %v", err, section.Name())
		}
		entry.PdoIndex = uint16(pdoIndex)
		entry.SubIndex = uint8(subIndex)
		desc.Pdos = append(desc.Pdos, entry)
	}
	if len(desc.Pdos) == 0 {
		return desc, fmt.Errorf("%w: %v declares no pdo entries", goecat.ErrConfig, path)
	}
	return desc, nil
}

func parsePdoSection(section *ini.Section) (mapping.PdoEntry, error) {
	var entry mapping.PdoEntry

	entry.Name = section.Key("Name").String()
	if entry.Name == "" {
		return entry, fmt.Errorf("%w: missing Name", goecat.ErrConfig)
	}
	dataType, err := image.ParseDataType(section.Key("Type").String())
	if err != nil {
		return entry, fmt.Errorf("%w: unknown Type %v", goecat.ErrConfig, section.Key("Type").String())
	}
	entry.Type = dataType

	switch section.Key("Direction").String() {
	case "input":
		entry.Dir = image.DirInput
	case "output":
		entry.Dir = image.DirOutput
	default:
		return entry, fmt.Errorf("%w: Direction must be input or output", goecat.ErrConfig)
	}
	return entry, nil
}
