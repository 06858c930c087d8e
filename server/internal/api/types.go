package api

// RemoteException is the HttpFS error payload.
type RemoteException struct {
	Exception     string `json:"exception"`
	JavaClassName string `json:"javaClassName"`
	Message       string `json:"message"`
}

type exceptionResponse struct {
	RemoteException RemoteException `json:"RemoteException"`
}

// FileStatus is one entry of GETFILESTATUS and LISTSTATUS responses.
type FileStatus struct {
	PathSuffix       string `json:"pathSuffix"`
	Type             string `json:"type"` // FILE | DIRECTORY
	Length           int64  `json:"length"`
	Owner            string `json:"owner"`
	Group            string `json:"group"`
	Permission       string `json:"permission"`
	AccessTime       int64  `json:"accessTime"`
	ModificationTime int64  `json:"modificationTime"`
	BlockSize        int64  `json:"blockSize"`
	Replication      int    `json:"replication"`
}

// FileStatusResponse is the payload of GET ?op=getfilestatus.
type FileStatusResponse struct {
	FileStatus FileStatus `json:"FileStatus"`
}

// ListStatusResponse is the payload of GET ?op=liststatus.
type ListStatusResponse struct {
	FileStatuses struct {
		FileStatus []FileStatus `json:"FileStatus"`
	} `json:"FileStatuses"`
}

// exception classes, keyed by the short name used in responses.
var javaClassNames = map[string]string{
	"FileNotFoundException":         "java.io.FileNotFoundException",
	"FileAlreadyExistsException":    "org.apache.hadoop.fs.FileAlreadyExistsException",
	"IllegalArgumentException":      "java.lang.IllegalArgumentException",
	"SecurityException":             "java.lang.SecurityException",
	"UnsupportedOperationException": "java.lang.UnsupportedOperationException",
	"IOException":                   "java.io.IOException",
}
