package loader

import (
	"io"

	"github.com/pkg/errors"

	"github.com/lunixbochs/objimage/go/models"
)

// Parse builds an Image from the complete contents of one object file.
// Either every extraction phase succeeds or no Image is returned.
// The Image keeps no reference to p.
func Parse(p []byte) (*models.Image, error) {
	format, err := Detect(p)
	if err != nil {
		return nil, err
	}
	obj, err := open(p, format)
	if err != nil {
		return nil, err
	}
	return build(obj)
}

// ParseReader reads r to EOF and parses the result.
func ParseReader(r io.Reader) (*models.Image, error) {
	p, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read object")
	}
	return Parse(p)
}

func open(p []byte, format models.Format) (objectFile, error) {
	switch format {
	case models.FormatELF32LE, models.FormatELF32BE, models.FormatELF64LE, models.FormatELF64BE:
		return openElf(p, format)
	case models.FormatMachO:
		return openMachO(p)
	case models.FormatPE32, models.FormatPE32Plus:
		return openPE(p, format)
	case models.FormatArchive:
		return nil, newError(ErrUnsupportedFormat, StageHeader, "archive")
	}
	return nil, newError(ErrUnrecognizedFormat, StageHeader, "format %s", format)
}

func build(obj objectFile) (*models.Image, error) {
	entry, err := obj.Entry()
	if err != nil {
		return nil, err
	}
	segments, err := obj.Segments()
	if err != nil {
		return nil, err
	}
	symbols, err := obj.Symbols()
	if err != nil {
		return nil, err
	}
	sections, err := readSections(obj)
	if err != nil {
		return nil, err
	}
	return models.NewImage(obj.Format(), obj.Arch(), entry, segments, symbols, sections), nil
}
