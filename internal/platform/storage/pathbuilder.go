package storage

import (
	"fmt"
	"strings"
	"sync"
)

// ArtifactPurpose captures high-level intent for storage layout decisions.
type ArtifactPurpose string

const (
	PurposeSourceUpload   ArtifactPurpose = "source-upload"
	PurposeGenerationStep ArtifactPurpose = "generation-step"
	PurposePreview        ArtifactPurpose = "preview"
	PurposeFullRes        ArtifactPurpose = "fullres"
	PurposeOrderDelivery  ArtifactPurpose = "order-delivery"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	ArtworkID string
	StepID    string
	OrderID   string
	FileName  string
}

// PathBuilder composes the object path for a given artifact purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[ArtifactPurpose]PathBuilder{
		PurposeSourceUpload:   buildSourceUploadPath,
		PurposeGenerationStep: buildGenerationStepPath,
		PurposePreview:        buildPreviewPath,
		PurposeFullRes:        buildFullResPath,
		PurposeOrderDelivery:  buildOrderDeliveryPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose ArtifactPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ArtifactPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported artifact purpose %q", purpose)
	}
	return builder(params)
}

func buildSourceUploadPath(params PathParams) (string, error) {
	artworkID, err := validateSegment("artworkID", params.ArtworkID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("artworks/%s/sources/%s", artworkID, fileName), nil
}

func buildGenerationStepPath(params PathParams) (string, error) {
	artworkID, err := validateSegment("artworkID", params.ArtworkID)
	if err != nil {
		return "", err
	}
	stepID, err := validateSegment("stepID", params.StepID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("artworks/%s/steps/%s/%s", artworkID, stepID, fileName), nil
}

func buildPreviewPath(params PathParams) (string, error) {
	artworkID, err := validateSegment("artworkID", params.ArtworkID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("artworks/%s/preview/%s", artworkID, fileName), nil
}

func buildFullResPath(params PathParams) (string, error) {
	artworkID, err := validateSegment("artworkID", params.ArtworkID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("artworks/%s/fullres/%s", artworkID, fileName), nil
}

func buildOrderDeliveryPath(params PathParams) (string, error) {
	orderID, err := validateSegment("orderID", params.OrderID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("orders/%s/delivery/%s", orderID, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
