package fulfillment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pawtrait-studio/api/internal/domain"
)

// ErrDigitalProduct is returned when a download-only purchase reaches the
// physical fulfillment path.
var ErrDigitalProduct = errors.New("fulfillment: digital products are not printed")

// ProductSpec selects a printable product for a destination country.
type ProductSpec struct {
	Type    domain.ProductType
	Size    string
	Country string
}

// ProductConfig identifies the provider catalog entry to print on.
type ProductConfig struct {
	BlueprintID     int
	VariantID       int
	PrintProviderID int
	ShippingMethod  int
}

const (
	blueprintPosterUSCA    = 1191
	blueprintGicleeEU      = 494
	blueprintFramedCanvas  = 944
	printProviderGeneric   = 1
	shippingMethodStandard = 1
)

var northAmerica = map[string]bool{"US": true, "CA": true}

var printSizes = map[domain.ProductType]map[string]bool{
	domain.ProductTypeArtPrint:     {"12x18": true, "16x20": true, "18x24": true},
	domain.ProductTypeFramedCanvas: {"12x16": true, "16x20": true, "20x24": true},
}

// Provider variant identifiers per blueprint and size.
var (
	posterVariantsUSCA = map[string]int{"12x18": 43144, "16x20": 43150, "18x24": 43153}
	gicleeVariantsEU   = map[string]int{"12x18": 17396, "16x20": 17400, "18x24": 17402}
	canvasVariants     = map[string]int{"12x16": 71612, "16x20": 71616, "20x24": 71620}
)

// ResolveProductConfig maps a product selection and destination to the
// provider catalog entry. Paper prints ship from a regional blueprint so
// transatlantic shipping is avoided; framed canvas uses a single global one.
func ResolveProductConfig(spec ProductSpec) (ProductConfig, error) {
	if spec.Type == domain.ProductTypeDigital {
		return ProductConfig{}, ErrDigitalProduct
	}
	sizes, ok := printSizes[spec.Type]
	if !ok {
		return ProductConfig{}, fmt.Errorf("fulfillment: unknown product type %q", spec.Type)
	}
	if !sizes[spec.Size] {
		return ProductConfig{}, fmt.Errorf("fulfillment: size %q is not available for %s", spec.Size, spec.Type)
	}

	config := ProductConfig{
		PrintProviderID: printProviderGeneric,
		ShippingMethod:  shippingMethodStandard,
	}
	switch spec.Type {
	case domain.ProductTypeArtPrint:
		if northAmerica[strings.ToUpper(strings.TrimSpace(spec.Country))] {
			config.BlueprintID = blueprintPosterUSCA
			config.VariantID = posterVariantsUSCA[spec.Size]
		} else {
			config.BlueprintID = blueprintGicleeEU
			config.VariantID = gicleeVariantsEU[spec.Size]
		}
	case domain.ProductTypeFramedCanvas:
		config.BlueprintID = blueprintFramedCanvas
		config.VariantID = canvasVariants[spec.Size]
	}
	return config, nil
}
