package taxonomy

import (
	"errors"
	"fmt"
)

// ErrorKind names a class of refused records. The value is reported to
// callers verbatim in the "exception" field of a conflict response.
type ErrorKind string

const (
	// KindTestRecord marks a record that is a known test fixture.
	KindTestRecord ErrorKind = "TestRecordException"
	// KindSESARSampleType marks a SESAR record whose sampleType is not a
	// sample in the iSamples sense (holes, sites).
	KindSESARSampleType ErrorKind = "SESARSampleTypeException"
)

// MetadataError reports that a record was refused by policy. It is not a
// fault: the record simply has no usable prediction.
type MetadataError struct {
	Kind    ErrorKind
	Message string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewTestRecordError returns a MetadataError of kind KindTestRecord.
func NewTestRecordError(msg string) *MetadataError {
	return &MetadataError{Kind: KindTestRecord, Message: msg}
}

// NewSESARSampleTypeError returns a MetadataError of kind KindSESARSampleType.
func NewSESARSampleTypeError(msg string) *MetadataError {
	return &MetadataError{Kind: KindSESARSampleType, Message: msg}
}

// AsMetadataError unwraps err to a *MetadataError if there is one in its chain.
func AsMetadataError(err error) (*MetadataError, bool) {
	var me *MetadataError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// ErrMalformedRecord is wrapped by parse errors for records missing a
// structure the collection requires.
var ErrMalformedRecord = errors.New("malformed source record")
