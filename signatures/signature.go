package signatures

import (
	"errors"
	"fmt"
	"sort"
)

// SignatureID identifies a signature within a SignatureSet.
type SignatureID int

// CommonStringID identifies a common string within a SignatureSet.
type CommonStringID int

// Signature is a detection rule: a full pattern and the common strings that must all have been seen before the pattern is worth evaluating.
type Signature struct {
	ID            SignatureID
	Name          string
	Description   string
	Rule          string
	CommonStrings []CommonStringID
}

// RequiredCommonStringCount is the number of distinct common strings that must be sighted before the signature becomes a candidate.
func (s *Signature) RequiredCommonStringCount() int {
	return len(s.CommonStrings)
}

// IsSimple is true for signatures without common strings. These are evaluated on every chunk.
func (s *Signature) IsSimple() bool {
	return len(s.CommonStrings) == 0
}

// CommonString is a cheap prefilter pattern shared by one or more signatures.
type CommonString struct {
	ID           CommonStringID
	Pattern      string
	SignatureIDs []SignatureID
}

// SignatureSet is an immutable bundle of signatures and the common strings they depend on.
type SignatureSet struct {
	// CommonStrings is in stable order. A Matcher uses the position in this slice as the common string's index.
	CommonStrings []*CommonString
	Signatures    map[SignatureID]*Signature
}

// ErrInconsistent is returned by Validate when the set's references do not line up.
var ErrInconsistent = errors.New("inconsistent signature set")

// NewSignatureSet creates a SignatureSet and fills in each common string's dependent signatures from the signatures' references.
func NewSignatureSet(commonStrings []*CommonString, sigs []*Signature) (s *SignatureSet, err error) {
	s = &SignatureSet{
		CommonStrings: commonStrings,
		Signatures:    make(map[SignatureID]*Signature, len(sigs)),
	}

	byID := make(map[CommonStringID]*CommonString, len(commonStrings))
	for _, cs := range commonStrings {
		if _, ok := byID[cs.ID]; ok {
			err = fmt.Errorf("%w: duplicate common string id %d", ErrInconsistent, cs.ID)
			return
		}
		byID[cs.ID] = cs
		cs.SignatureIDs = nil
	}

	// Visit signatures in id order so dependent lists come out the same every time.
	ordered := make([]*Signature, len(sigs))
	copy(ordered, sigs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, sig := range ordered {
		if _, ok := s.Signatures[sig.ID]; ok {
			err = fmt.Errorf("%w: duplicate signature id %d", ErrInconsistent, sig.ID)
			return
		}
		s.Signatures[sig.ID] = sig

		for _, ref := range sig.CommonStrings {
			cs, ok := byID[ref]
			if !ok {
				err = fmt.Errorf("%w: signature %d references unknown common string %d", ErrInconsistent, sig.ID, ref)
				return
			}
			cs.SignatureIDs = append(cs.SignatureIDs, sig.ID)
		}
	}

	err = s.Validate()
	return
}

// Validate checks that the set can be matched against. Every reference must resolve, no signature may list a common string twice, and the dependent lists must agree with the signatures' references.
func (s *SignatureSet) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil signature set", ErrInconsistent)
	}

	byID := make(map[CommonStringID]*CommonString, len(s.CommonStrings))
	for _, cs := range s.CommonStrings {
		if cs == nil {
			return fmt.Errorf("%w: nil common string", ErrInconsistent)
		}
		if _, ok := byID[cs.ID]; ok {
			return fmt.Errorf("%w: duplicate common string id %d", ErrInconsistent, cs.ID)
		}
		byID[cs.ID] = cs
	}

	type edge struct {
		sig SignatureID
		cs  CommonStringID
	}
	refs := make(map[edge]struct{})

	for id, sig := range s.Signatures {
		if sig == nil {
			return fmt.Errorf("%w: nil signature for id %d", ErrInconsistent, id)
		}
		if sig.ID != id {
			return fmt.Errorf("%w: signature keyed as %d has id %d", ErrInconsistent, id, sig.ID)
		}
		for _, ref := range sig.CommonStrings {
			if _, ok := byID[ref]; !ok {
				return fmt.Errorf("%w: signature %d references unknown common string %d", ErrInconsistent, id, ref)
			}
			e := edge{id, ref}
			if _, dup := refs[e]; dup {
				return fmt.Errorf("%w: signature %d references common string %d more than once", ErrInconsistent, id, ref)
			}
			refs[e] = struct{}{}
		}
	}

	dependents := 0
	for _, cs := range s.CommonStrings {
		seen := make(map[SignatureID]struct{}, len(cs.SignatureIDs))
		for _, sigID := range cs.SignatureIDs {
			if _, ok := s.Signatures[sigID]; !ok {
				return fmt.Errorf("%w: common string %d lists unknown signature %d", ErrInconsistent, cs.ID, sigID)
			}
			if _, dup := seen[sigID]; dup {
				return fmt.Errorf("%w: common string %d lists signature %d more than once", ErrInconsistent, cs.ID, sigID)
			}
			seen[sigID] = struct{}{}
			if _, ok := refs[edge{sigID, cs.ID}]; !ok {
				return fmt.Errorf("%w: common string %d lists signature %d, which does not reference it", ErrInconsistent, cs.ID, sigID)
			}
			dependents++
		}
	}

	if dependents != len(refs) {
		return fmt.Errorf("%w: %d signature references but %d common string dependents", ErrInconsistent, len(refs), dependents)
	}

	return nil
}

// SortedSignatureIDs returns all signature ids in ascending order.
func (s *SignatureSet) SortedSignatureIDs() []SignatureID {
	ids := make([]SignatureID, 0, len(s.Signatures))
	for id := range s.Signatures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
