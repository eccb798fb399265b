package msgraph

// siteResponse is the Graph API site lookup response.
type siteResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// listItemsResponse is one page of a list items query.
type listItemsResponse struct {
	Value    []listItem `json:"value"`
	NextLink string     `json:"@odata.nextLink"`
}

type listItem struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
