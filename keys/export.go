package keys

// Export returns the text form of an identity's root ref, or of one of its
// shares when share is non-empty.
func (ks *KeyStore) Export(identifier, share string) (string, error) {
	if share != "" {
		ref, err := ks.LoadShare(identifier, share)
		if err != nil {
			return "", err
		}
		return ref.String(), nil
	}
	ref, _, err := ks.Load(identifier)
	if err != nil {
		return "", err
	}
	return ref.String(), nil
}
