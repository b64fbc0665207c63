package jsontree

// DeepMerge overlays src onto dst and returns the result. When both sides
// are objects, keys merge recursively; otherwise src replaces dst. Arrays
// are replaced, not concatenated. Neither input is modified.
func DeepMerge(dst, src Value) Value {
	srcObj, ok := src.(Object)
	if !ok {
		return Clone(src)
	}

	dstObj, ok := dst.(Object)
	if !ok {
		dstObj = Object{}
	}

	out := make(Object, len(dstObj)+len(srcObj))
	for k, v := range dstObj {
		out[k] = Clone(v)
	}
	for k, v := range srcObj {
		out[k] = DeepMerge(out[k], v)
	}
	return out
}

// Overlay replaces top-level keys of dst with those of src.
func Overlay(dst, src Object) Object {
	out := make(Object, len(dst)+len(src))
	for k, v := range dst {
		out[k] = Clone(v)
	}
	for k, v := range src {
		out[k] = Clone(v)
	}
	return out
}
