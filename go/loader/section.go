package loader

import (
	"github.com/lunixbochs/objimage/go/models"
)

// sectionLister is the one capability the section extractor needs from a format.
type sectionLister interface {
	listSections() ([]models.Section, error)
}

// readSections reports every declared section, mapped at runtime or not.
func readSections(l sectionLister) ([]models.Section, error) {
	secs, err := l.listSections()
	if err != nil {
		return nil, err
	}
	if secs == nil {
		secs = []models.Section{}
	}
	return secs, nil
}
