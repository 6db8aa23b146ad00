// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a troubleshooting guide.
type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	CredentialsMissingId
	UnsupportedSchemeId
	PermissionDeniedId
	BucketNotFoundId
)

type (
	// MarkdownMsg is guide text in Markdown.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is a troubleshooting guide shown under an error.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render formats the guide for the terminal. stylePath is a glamour style
// name ("auto", "dark", "notty") or a path to a JSON style.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# The configuration file could not be loaded

cloudsh reads ` + "`config.cue`" + ` from its config directory and validates it
before running any command.

## Things you can try
- Print the location of the file:
~~~
$ cloudsh config path
~~~
- Compare it with the defaults:
~~~
$ cloudsh config show --defaults
~~~
- Point to another file for a single run with ` + "`--config`" + `.`,
		docLinks: []HttpLink{"https://cuelang.org/docs/tour/"},
	}

	credentialsMissingIssue = &Issue{
		id: CredentialsMissingId,
		mdMsg: `
# No cloud credentials were found

The storage client for this path could not authenticate.

## Things you can try
- **Google Cloud Storage**: run ` + "`gcloud auth application-default login`" + ` or set
  ` + "`gcs.credentials_file`" + ` in the config.
- **Amazon S3**: configure a profile with ` + "`aws configure`" + `, or set
  ` + "`CLOUDSH_S3_ACCESS_KEY_ID`" + ` and ` + "`CLOUDSH_S3_SECRET_ACCESS_KEY`" + `.
- **Azure Blob Storage**: run ` + "`az login`" + ` or set ` + "`azure.connection_string`" + `.`,
		docLinks: []HttpLink{
			"https://cloud.google.com/docs/authentication/provide-credentials-adc",
			"https://docs.aws.amazon.com/sdkref/latest/guide/file-format.html",
			"https://learn.microsoft.com/azure/developer/go/azure-sdk-authentication",
		},
	}

	unsupportedSchemeIssue = &Issue{
		id: UnsupportedSchemeId,
		mdMsg: `
# Unsupported path scheme

cloudsh understands local paths and these URL forms:

| Scheme | Example |
|--------|---------|
| ` + "`gs://`" + ` | ` + "`gs://bucket/path/to/object`" + ` |
| ` + "`s3://`" + ` | ` + "`s3://bucket/path/to/object`" + ` |
| ` + "`az://`" + ` | ` + "`az://container/path/to/blob`" + ` |
| ` + "`file://`" + ` | ` + "`file:///tmp/data.txt`" + ` |`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied

The operation reached the storage backend but was refused.

## Things you can try
- Check the file mode or the bucket IAM policy for the path.
- For cloud paths, confirm the active credentials belong to the account
  you expect.`,
	}

	bucketNotFoundIssue = &Issue{
		id: BucketNotFoundId,
		mdMsg: `
# Bucket or container not found

The first path segment after the scheme names a bucket (or Azure
container) that does not exist or is not visible to your credentials.

## Things you can try
- List the buckets visible to you with the provider CLI
  (` + "`gcloud storage ls`, `aws s3 ls`, `az storage container list`" + `).
- Check the spelling and region of the bucket.`,
	}

	issues = map[Id]*Issue{
		ConfigLoadFailedId:   configLoadFailedIssue,
		CredentialsMissingId: credentialsMissingIssue,
		UnsupportedSchemeId:  unsupportedSchemeIssue,
		PermissionDeniedId:   permissionDeniedIssue,
		BucketNotFoundId:     bucketNotFoundIssue,
	}
)

// Values returns every registered guide ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

// Get returns the guide for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
