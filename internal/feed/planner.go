package feed

const (
	// FixedRequestOverhead is the request length consumed before any ids are
	// appended (statement text, filter syntax, headers).
	FixedRequestOverhead = 256

	// IDSeparatorLength is the length of the separator between two ids.
	IDSeparatorLength = 1
)

// BatchConstraints describe the size limits of a single Count Store request.
type BatchConstraints struct {
	MaxBatchSize      int `toml:"max_size"`
	MaxRequestLength  int `toml:"max_request_length"`
	EstimatedIDLength int `toml:"estimated_id_length"`
}

// DefaultBatchConstraints returns conservative limits used when configured
// constraints are unusable.
func DefaultBatchConstraints() BatchConstraints {
	return BatchConstraints{
		MaxBatchSize:      100,
		MaxRequestLength:  8192,
		EstimatedIDLength: 20, // max int64 is 19 digits
	}
}

// SafeBatchSize computes how many ids fit into one request for an input of n ids.
func SafeBatchSize(n int, c BatchConstraints) (int, error) {
	if c.MaxBatchSize <= 0 {
		return 0, &ConfigurationError{Constraints: c, Reason: "max batch size must be positive"}
	}
	if c.EstimatedIDLength < 0 {
		return 0, &ConfigurationError{Constraints: c, Reason: "estimated id length must not be negative"}
	}

	byLength := (c.MaxRequestLength - FixedRequestOverhead) / (c.EstimatedIDLength + IDSeparatorLength)
	if byLength <= 0 {
		return 0, &ConfigurationError{Constraints: c, Reason: "request length leaves no room for ids"}
	}

	size := min(c.MaxBatchSize, byLength)
	if n > 0 {
		size = min(size, n)
	}
	return size, nil
}

// Plan partitions ids into chunks no larger than the safe batch size.
// Order is preserved within and across chunks; an empty input yields no chunks.
func Plan(ids []int64, c BatchConstraints) ([][]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	size, err := SafeBatchSize(len(ids), c)
	if err != nil {
		return nil, err
	}

	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks, nil
}
