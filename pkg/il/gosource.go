package il

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dave/jennifer/jen"
)

const ilPath = "github.com/chazu/vmgen/pkg/il"

// GoSource renders r as a Go function over an *il.Memory. The listing is
// meant for inspection and persistence; it mirrors the closure code Compile
// produces one statement per operation.
func GoSource(r *Routine, pkg string) (string, error) {
	if err := r.Err(); err != nil {
		return "", err
	}

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by vmgen. DO NOT EDIT.")

	blocks := r.reachable()
	labeled := make(map[*Block]bool)
	for _, blk := range blocks {
		for _, s := range blk.successors() {
			labeled[s] = true
		}
	}

	params := []jen.Code{
		jen.Id("mem").Op("*").Qual(ilPath, "Memory"),
		jen.Id("call").Func().Params(jen.Id("name").String(), jen.Id("args").Op("...").Interface()),
	}
	for _, p := range r.params {
		params = append(params, jen.Id(paramName(p.Name)).Uint64())
	}

	var body []jen.Code
	if len(r.values) > 0 {
		defs := make([]jen.Code, 0, len(r.values))
		for _, v := range r.values {
			if v.typ.Kind == KindString {
				defs = append(defs, jen.Id(v.String()).String())
			} else {
				defs = append(defs, jen.Id(v.String()).Int64())
			}
		}
		body = append(body, jen.Var().Defs(defs...))
		for _, v := range r.values {
			body = append(body, jen.Id("_").Op("=").Id(v.String()))
		}
	}
	for _, p := range r.params {
		body = append(body, jen.Id(p.Value.String()).Op("=").Int64().Call(jen.Id(paramName(p.Name))))
	}

	for _, blk := range blocks {
		if labeled[blk] {
			body = append(body, jen.Id(label(blk)).Op(":"))
		}
		for _, in := range blk.instrs {
			body = append(body, renderInstr(in))
		}
		body = append(body, renderTerminator(blk)...)
	}

	f.Commentf("%s is generated from IL routine %q.", goIdent(r.name), r.name)
	f.Func().Id(goIdent(r.name)).Params(params...).Block(body...)

	f.Func().Id("b2i").Params(jen.Id("b").Bool()).Int64().Block(
		jen.If(jen.Id("b")).Block(jen.Return(jen.Lit(int64(1)))),
		jen.Return(jen.Lit(int64(0))),
	)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("il: render %s: %w", r.name, err)
	}
	return buf.String(), nil
}

func renderInstr(in instr) jen.Code {
	id := func(v *Value) *jen.Statement { return jen.Id(v.String()) }
	addr := func(v *Value) *jen.Statement { return jen.Qual(ilPath, "Addr").Call(id(v)) }
	kind := func(t *Type) *jen.Statement { return jen.Qual(ilPath, kindConst(t.Kind)) }

	switch in.op {
	case opConst:
		return id(in.dst).Op("=").Lit(in.imm)
	case opConstString:
		return id(in.dst).Op("=").Lit(in.str)
	case opCopy, opStoreOver:
		return id(in.dst).Op("=").Add(id(in.args[0]))
	case opAdd:
		return id(in.dst).Op("=").Add(id(in.args[0])).Op("+").Add(id(in.args[1]))
	case opSub:
		return id(in.dst).Op("=").Add(id(in.args[0])).Op("-").Add(id(in.args[1]))
	case opMul:
		return id(in.dst).Op("=").Add(id(in.args[0])).Op("*").Add(id(in.args[1]))
	case opEqual:
		return id(in.dst).Op("=").Id("b2i").Call(id(in.args[0]).Op("==").Add(id(in.args[1])))
	case opLessThan:
		return id(in.dst).Op("=").Id("b2i").Call(id(in.args[0]).Op("<").Add(id(in.args[1])))
	case opUnsignedLessThan:
		return id(in.dst).Op("=").Id("b2i").Call(
			jen.Uint64().Call(id(in.args[0])).Op("<").Uint64().Call(id(in.args[1])))
	case opConvert:
		switch in.typ.Kind {
		case KindUint8:
			return id(in.dst).Op("=").Int64().Call(jen.Uint8().Call(id(in.args[0])))
		case KindInt32:
			return id(in.dst).Op("=").Int64().Call(jen.Int32().Call(id(in.args[0])))
		default:
			return id(in.dst).Op("=").Add(id(in.args[0]))
		}
	case opLoadAt:
		return id(in.dst).Op("=").Id("mem").Dot("Load").Call(kind(in.typ), addr(in.args[0]))
	case opStoreAt:
		return jen.Id("mem").Dot("Store").Call(kind(in.typ), addr(in.args[0]), id(in.args[1]))
	case opFieldAddr:
		return id(in.dst).Op("=").Add(id(in.args[0])).Op("+").Lit(in.imm).Comment(in.str)
	case opCall:
		args := []jen.Code{jen.Lit(in.str)}
		for _, a := range in.args {
			args = append(args, id(a))
		}
		return jen.Id("call").Call(args...)
	}
	return jen.Comment(fmt.Sprintf("unknown operation %d", in.op))
}

func renderTerminator(blk *Block) []jen.Code {
	t := blk.term
	switch t.kind {
	case termGoto:
		return []jen.Code{jen.Goto().Id(label(t.targets[0]))}
	case termBranch:
		return []jen.Code{
			jen.If(jen.Id(t.cond.String()).Op("!=").Lit(int64(0))).Block(jen.Goto().Id(label(t.targets[0]))),
			jen.Goto().Id(label(t.targets[1])),
		}
	case termSwitch:
		arms := make([]jen.Code, 0, len(t.cases)+1)
		for _, c := range t.cases {
			arms = append(arms, jen.Case(jen.Lit(c.Value)).Block(jen.Goto().Id(label(c.Target))))
		}
		arms = append(arms, jen.Default().Block(jen.Goto().Id(label(t.targets[0]))))
		return []jen.Code{jen.Switch(jen.Id(t.cond.String())).Block(arms...)}
	case termReturn:
		return []jen.Code{jen.Return()}
	}
	return []jen.Code{jen.Panic(jen.Lit("unterminated block " + blk.name))}
}

func kindConst(k Kind) string {
	switch k {
	case KindUint8:
		return "KindUint8"
	case KindInt32:
		return "KindInt32"
	case KindAddress:
		return "KindAddress"
	default:
		return "KindInt64"
	}
}

func label(blk *Block) string { return fmt.Sprintf("b%d", blk.id) }

func paramName(name string) string { return "p_" + goIdent(name) }

// goIdent maps an arbitrary routine name onto a Go identifier.
func goIdent(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_routine"
	}
	return sb.String()
}
