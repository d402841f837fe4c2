// Package pgp verifies OpenPGP detached signatures on package files and
// clearsigned index documents (Debian's InRelease), against certificate
// bundles compiled into the binary.
package pgp

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/reproenv/repro-env/internal/reproerr"
)

//go:embed certs
var embeddedCerts embed.FS

// KeyringName identifies which embedded certificate bundle to load.
type KeyringName string

const (
	KeyringArchLinux KeyringName = "archlinux"
	KeyringDebian    KeyringName = "debian"
)

// LoadEmbeddedKeyring reads every armored keyring file under
// certs/<name>/ and merges them into a single EntityList.
func LoadEmbeddedKeyring(name KeyringName) (openpgp.EntityList, error) {
	root := "certs/" + string(name)
	var keyring openpgp.EntityList

	err := fs.WalkDir(embeddedCerts, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".asc") {
			return nil
		}

		data, err := embeddedCerts.ReadFile(path)
		if err != nil {
			return err
		}

		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to parse keyring %s: %w", path, err)
		}
		keyring = append(keyring, entities...)
		return nil
	})
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindSignatureInvalid, fmt.Sprintf("failed to load %s keyring", name), err)
	}

	if len(keyring) == 0 {
		return nil, reproerr.New(reproerr.KindSignatureInvalid, fmt.Sprintf("no %s certificates available; embed real keyring material before verifying signatures", name))
	}

	return keyring, nil
}

// VerifyDetached checks a detached OpenPGP signature over message against
// the given keyring. Mirrors spec.md's verify_detached contract.
func VerifyDetached(signature, message []byte, keyring openpgp.EntityList) error {
	if len(keyring) == 0 {
		return reproerr.New(reproerr.KindSignatureInvalid, "empty certificate set")
	}

	_, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(message), bytes.NewReader(signature), nil)
	if err != nil {
		return reproerr.Wrap(reproerr.KindSignatureInvalid, "no valid signature found", err)
	}
	return nil
}

// VerifyClearsigned validates a clearsigned document (Debian's InRelease)
// against keyring and returns the plaintext body with the clearsign
// wrapper removed.
func VerifyClearsigned(data []byte, keyring openpgp.EntityList) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, reproerr.New(reproerr.KindSignatureInvalid, "failed to parse clearsigned document")
	}

	_, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Plaintext), block.ArmoredSignature.Body, nil)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindSignatureInvalid, "clearsign verification failed", err)
	}

	return block.Plaintext, nil
}
