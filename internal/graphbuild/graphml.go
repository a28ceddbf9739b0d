package graphbuild

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// WriteGraphML serializes the graph as a directed GraphML document. Attribute
// keys are declared once with a type inferred from the values observed across
// the graph, and nodes, edges and keys are emitted in sorted order so the
// same graph always produces the same bytes.
func WriteGraphML(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)

	nodeKeys := collectKeys(g, true)
	edgeKeys := collectKeys(g, false)

	fmt.Fprintln(bw, `<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintln(bw, `<graphml xmlns="http://graphml.graphdrawing.org/xmlns" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="http://graphml.graphdrawing.org/xmlns http://graphml.graphdrawing.org/xmlns/1.0/graphml.xsd">`)

	keyIDs := make(map[string]string)
	writeKeyDecls := func(keys map[string]string, domain string) {
		names := make([]string, 0, len(keys))
		for name := range keys {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			id := fmt.Sprintf("d%d", len(keyIDs))
			keyIDs[domain+"\x00"+name] = id
			fmt.Fprintf(bw, "  <key id=\"%s\" for=\"%s\" attr.name=\"%s\" attr.type=\"%s\" />\n",
				id, domain, escape(name), keys[name])
		}
	}
	writeKeyDecls(nodeKeys, "node")
	writeKeyDecls(edgeKeys, "edge")

	fmt.Fprintln(bw, `  <graph edgedefault="directed">`)

	for _, id := range g.NodeIDs() {
		attrs := g.NodeAttrs(id)
		if len(attrs) == 0 {
			fmt.Fprintf(bw, "    <node id=\"%s\" />\n", escape(id))
			continue
		}
		fmt.Fprintf(bw, "    <node id=\"%s\">\n", escape(id))
		writeData(bw, attrs, keyIDs, "node", "      ")
		fmt.Fprintln(bw, "    </node>")
	}

	for _, key := range g.EdgeKeys() {
		attrs := g.EdgeAttrs(key)
		if len(attrs) == 0 {
			fmt.Fprintf(bw, "    <edge source=\"%s\" target=\"%s\" />\n", escape(key.Source), escape(key.Target))
			continue
		}
		fmt.Fprintf(bw, "    <edge source=\"%s\" target=\"%s\">\n", escape(key.Source), escape(key.Target))
		writeData(bw, attrs, keyIDs, "edge", "      ")
		fmt.Fprintln(bw, "    </edge>")
	}

	fmt.Fprintln(bw, "  </graph>")
	fmt.Fprintln(bw, "</graphml>")
	return bw.Flush()
}

func writeData(w io.Writer, attrs map[string]any, keyIDs map[string]string, domain, indent string) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := keyIDs[domain+"\x00"+name]
		fmt.Fprintf(w, "%s<data key=\"%s\">%s</data>\n", indent, id, escape(formatValue(attrs[name])))
	}
}

// collectKeys gathers every attribute name used in the node or edge domain
// together with its GraphML type. Mixed-type attributes degrade to string.
func collectKeys(g *Graph, nodes bool) map[string]string {
	keys := make(map[string]string)
	record := func(attrs map[string]any) {
		for name, value := range attrs {
			typ := graphmlType(value)
			if prev, ok := keys[name]; ok && prev != typ {
				keys[name] = "string"
				continue
			}
			keys[name] = typ
		}
	}
	if nodes {
		for _, id := range g.NodeIDs() {
			record(g.NodeAttrs(id))
		}
	} else {
		for _, key := range g.EdgeKeys() {
			record(g.EdgeAttrs(key))
		}
	}
	return keys
}

func graphmlType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int32, int64:
		return "long"
	case float32, float64:
		return "double"
	default:
		return "string"
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		// Follows the convention of capitalized booleans used by the
		// network files consumed downstream.
		if val {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func escape(s string) string {
	var buf []byte
	if err := xml.EscapeText(writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	}), []byte(s)); err != nil {
		return s
	}
	return string(buf)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
