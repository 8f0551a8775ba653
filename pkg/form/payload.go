package form

// Payload flattens a state into the document posted to the CRM. Missing
// fields are filled from defaults, flags become 0/1 (Frappe check fields) and
// multiselects become child rows when the field names an item key.
func (s *Schema) Payload(st State) map[string]any {
	full := s.Complete(st)
	out := make(map[string]any, len(s.Fields)+1)
	if s.Doctype != "" {
		out["doctype"] = s.Doctype
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Omit {
			continue
		}
		key := f.SubmitAs
		if key == "" {
			key = f.Name
		}
		v := full[f.Name]
		switch v.Shape() {
		case ShapeString:
			out[key] = v.Text()
		case ShapeBool:
			if v.Flag() {
				out[key] = 1
			} else {
				out[key] = 0
			}
		case ShapeList:
			items := v.Items()
			if f.ItemKey == "" {
				out[key] = items
				continue
			}
			rows := make([]map[string]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, map[string]string{f.ItemKey: item})
			}
			out[key] = rows
		}
	}
	return out
}
