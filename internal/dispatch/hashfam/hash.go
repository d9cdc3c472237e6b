// Package hashfam implements the digest instruction family: HASH/SHA1,
// HASH/SHA224, HASH/SHA256, HASH/SHA384, HASH/SHA512, HASH/SHA512-224,
// HASH/SHA512-256 (spec.md §4.6.3).
package hashfam

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

type Handler struct{}

func New() *Handler { return &Handler{} }

func (h *Handler) Init(env *vm.Env) {}
func (h *Handler) Done(env *vm.Env) {}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	var digest []byte
	v, ok := env.Top()
	switch string(instr.Name) {
	case "HASH/SHA1":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha1.Sum(v)
		digest = sum[:]
	case "HASH/SHA224":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha256.Sum224(v)
		digest = sum[:]
	case "HASH/SHA256":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha256.Sum256(v)
		digest = sum[:]
	case "HASH/SHA384":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha512.Sum384(v)
		digest = sum[:]
	case "HASH/SHA512":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha512.Sum512(v)
		digest = sum[:]
	case "HASH/SHA512-224":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha512.Sum512_224(v)
		digest = sum[:]
	case "HASH/SHA512-256":
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Pop()
		sum := sha512.Sum512_256(v)
		digest = sum[:]
	default:
		return vm.ErrUnhandled
	}
	env.Push(env.AllocCopy(digest))
	return nil
}
