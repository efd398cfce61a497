package loader

import (
	"github.com/lunixbochs/objimage/go/models"
)

// imageHeader holds what every format adapter knows as soon as it opens.
type imageHeader struct {
	format models.Format
	arch   models.Arch
}

func (h *imageHeader) Format() models.Format { return h.format }
func (h *imageHeader) Arch() models.Arch     { return h.arch }

// objectFile is one opened container. Each format implements it once;
// Parse picks the implementation from the detected format and never
// inspects it again.
type objectFile interface {
	Format() models.Format
	Arch() models.Arch
	Entry() (uint64, error)
	Segments() ([]models.Segment, error)
	Symbols() ([]models.Symbol, error)
	sectionLister
}
