package pricing

import (
	"errors"
	"fmt"

	"printshop/internal/models"
)

// ErrInvalidOptions rejects print options before anything is persisted.
var ErrInvalidOptions = errors.New("invalid print options")

const maxCopies = 500

// Paper quotes and validates one paper option.
type Paper interface {
	Validate(copies int) error
	CostPerCopy() float64
	Size() models.PaperSize
}

type NormalPaper struct{}

func (p NormalPaper) Validate(copies int) error {
	return validateCopies(copies, maxCopies)
}

func (p NormalPaper) CostPerCopy() float64 {
	return 1.0
}

func (p NormalPaper) Size() models.PaperSize {
	return models.PaperNormal
}

type GlossyPaper struct{}

func (p GlossyPaper) Validate(copies int) error {
	// Glossy stock is kept in small quantities.
	return validateCopies(copies, 100)
}

func (p GlossyPaper) CostPerCopy() float64 {
	return 5.0
}

func (p GlossyPaper) Size() models.PaperSize {
	return models.PaperGlossy
}

type MattePaper struct{}

func (p MattePaper) Validate(copies int) error {
	return validateCopies(copies, 100)
}

func (p MattePaper) CostPerCopy() float64 {
	return 4.0
}

func (p MattePaper) Size() models.PaperSize {
	return models.PaperMatte
}

func validateCopies(copies, limit int) error {
	if copies < 1 {
		return fmt.Errorf("%w: copies must be at least 1, got %d", ErrInvalidOptions, copies)
	}
	if copies > limit {
		return fmt.Errorf("%w: at most %d copies per order, got %d", ErrInvalidOptions, limit, copies)
	}
	return nil
}

type Service interface {
	GetPaper(size models.PaperSize) (Paper, error)
	Quote(size models.PaperSize, copies int, color, doubleSided bool) (float64, error)
	ListPaper() []models.PaperSize
}

type service struct {
	papers map[models.PaperSize]Paper
}

func NewService() Service {
	return &service{
		papers: map[models.PaperSize]Paper{
			models.PaperNormal: NormalPaper{},
			models.PaperGlossy: GlossyPaper{},
			models.PaperMatte:  MattePaper{},
		},
	}
}

func (s *service) GetPaper(size models.PaperSize) (Paper, error) {
	if p, ok := s.papers[size]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: unsupported paper size %q", ErrInvalidOptions, size)
}

// Quote prices one order at submission time. Color doubles the per-copy
// cost, double-sided adds half.
func (s *service) Quote(size models.PaperSize, copies int, color, doubleSided bool) (float64, error) {
	p, err := s.GetPaper(size)
	if err != nil {
		return 0, err
	}
	if err := p.Validate(copies); err != nil {
		return 0, err
	}
	perCopy := p.CostPerCopy()
	if color {
		perCopy *= 2
	}
	if doubleSided {
		perCopy *= 1.5
	}
	return perCopy * float64(copies), nil
}

func (s *service) ListPaper() []models.PaperSize {
	var list []models.PaperSize
	for k := range s.papers {
		list = append(list, k)
	}
	return list
}
