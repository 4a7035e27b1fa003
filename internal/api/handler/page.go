package handler

import "html/template"

type pageData struct {
	Query   string
	Status  string
	Results []SearchResult
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Image Search</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 1100px; padding: 0 1rem; color: #222; }
  form { display: flex; gap: .5rem; }
  input[type=text] { flex: 1; padding: .6rem; font-size: 1rem; }
  button { padding: .6rem 1.2rem; font-size: 1rem; }
  .status { margin: 1rem 0; color: #555; }
  .grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 1rem; }
  figure { margin: 0; border: 1px solid #ddd; border-radius: 6px; overflow: hidden; background: #fafafa; }
  figure img { width: 100%; display: block; }
  figcaption { padding: .5rem; font-size: .85rem; white-space: pre-line; }
</style>
</head>
<body>
<h1>Image Search</h1>
<form method="get" action="/">
  <input type="text" name="q" value="{{.Query}}" placeholder="Describe what you're looking for, e.g. 'sunset over mountains'" autofocus>
  <button type="submit">Search</button>
</form>
{{if .Status}}<p class="status">{{.Status}}</p>{{end}}
<div class="grid">
{{range .Results}}
  <figure>
    <a href="{{.URL}}"><img src="{{.ThumbnailURL}}" alt="" loading="lazy"></a>
    <figcaption>{{.Caption}}</figcaption>
  </figure>
{{end}}
</div>
</body>
</html>
`))
