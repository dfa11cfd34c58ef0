package pool

import "fmt"

func errIdentifierNotFound(name string) error {
	return fmt.Errorf("identifier %q not found in pool", name)
}

func errDuplicateIdentifier(name, holder string) error {
	return fmt.Errorf("identifier %q already held by %s", name, holder)
}
